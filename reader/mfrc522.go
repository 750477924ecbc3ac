package reader

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"rfidscan/pin"
)

// MFRC522 registers.
const (
	regCommand    = 0x01
	regCommIEn    = 0x02
	regCommIrq    = 0x04
	regDivIrq     = 0x05
	regError      = 0x06
	regStatus2    = 0x08
	regFIFOData   = 0x09
	regFIFOLevel  = 0x0A
	regControl    = 0x0C
	regBitFraming = 0x0D
	regMode       = 0x11
	regTxControl  = 0x14
	regTxAuto     = 0x15
	regCRCResultM = 0x21
	regCRCResultL = 0x22
	regTMode      = 0x2A
	regTPrescaler = 0x2B
	regTReloadH   = 0x2C
	regTReloadL   = 0x2D
)

// PCD commands.
const (
	pcdIdle       = 0x00
	pcdCalcCRC    = 0x03
	pcdTransceive = 0x0C
	pcdAuthent    = 0x0E
	pcdResetPhase = 0x0F
)

// PICC commands.
const (
	piccReqIdl    = 0x26
	piccAnticoll  = 0x93
	piccAuthent1A = 0x60
	piccRead      = 0x30
)

var (
	errNoTag    = errors.New("no tag")
	errTagComms = errors.New("tag communication error")

	// Key A shipped on blank MIFARE Classic cards.
	defaultKey = []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

	// Blocks of sector 2 holding the text payload, and its trailer.
	textBlocks   = []byte{8, 9, 10}
	textTrailer  = byte(11)
	transferLoop = 2000
)

// Bus is the register interface of an MFRC522. Tx writes w and reads
// len(r) bytes in full duplex.
type Bus interface {
	Tx(w, r []byte) error
}

// MFRC522 implements Device and PageReader for an NXP MFRC522 on SPI.
type MFRC522 struct {
	mu       sync.Mutex
	bus      Bus
	port     spi.PortCloser
	reset    pin.Output
	released bool
}

// NewMFRC522 opens the SPI port (empty = first available), pulses the reset
// line if one is wired and initialises the chip.
func NewMFRC522(port string, resetPin *int, pins pin.Config) (*MFRC522, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host: %w", err)
	}

	p, err := spireg.Open(port)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", port, err)
	}

	conn, err := p.Connect(1*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("connect spi %q: %w", port, err)
	}

	var reset pin.Output
	if resetPin != nil {
		reset, err = pin.Open(pins, *resetPin)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("open reset pin: %w", err)
		}
		if err := reset.High(); err != nil {
			reset.Close()
			p.Close()
			return nil, fmt.Errorf("raise reset pin: %w", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	r := &MFRC522{bus: conn, port: p, reset: reset}
	if err := r.init(); err != nil {
		r.Release()
		return nil, err
	}
	return r, nil
}

// NewMFRC522WithBus initialises a chip on an already connected bus.
func NewMFRC522WithBus(bus Bus) (*MFRC522, error) {
	r := &MFRC522{bus: bus}
	if err := r.init(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *MFRC522) init() error {
	steps := [][2]byte{
		{regCommand, pcdResetPhase},
		{regTMode, 0x8D},
		{regTPrescaler, 0x3E},
		{regTReloadL, 30},
		{regTReloadH, 0},
		{regTxAuto, 0x40},
		{regMode, 0x3D},
	}
	for _, s := range steps {
		if err := r.write(s[0], s[1]); err != nil {
			return fmt.Errorf("init mfrc522: %w", err)
		}
	}

	// Antenna on
	v, err := r.read(regTxControl)
	if err != nil {
		return fmt.Errorf("init mfrc522: %w", err)
	}
	if v&0x03 != 0x03 {
		if err := r.setBits(regTxControl, 0x03); err != nil {
			return fmt.Errorf("init mfrc522: %w", err)
		}
	}
	return nil
}

// TryRead implements Device.TryRead. It reads the uid and the text stored
// in blocks 8 to 10 with the default key. A tag that refuses
// authentication still yields its id with empty text.
func (r *MFRC522) TryRead() (Tag, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	uid, err := r.selectTag()
	if err != nil {
		return Tag{}, false, dropAbsent(err)
	}

	tag := Tag{ID: uidToNum(uid)}

	if err := r.auth(piccAuthent1A, textTrailer, defaultKey, uid); err == nil {
		var data []byte
		for _, block := range textBlocks {
			b, err := r.readBlock(block)
			if err != nil {
				if dropAbsent(err) != nil {
					return Tag{}, false, err
				}
				continue
			}
			data = append(data, b...)
		}
		tag.Text = latin1(data)
	} else if dropAbsent(err) != nil {
		return Tag{}, false, err
	}

	if err := r.stopCrypto(); err != nil {
		return Tag{}, false, err
	}
	return tag, true, nil
}

// TryReadPage implements PageReader.TryReadPage.
func (r *MFRC522) TryReadPage(page byte) ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.selectTag(); err != nil {
		return nil, false, dropAbsent(err)
	}

	data, err := r.readBlock(page)
	if err != nil {
		if dropAbsent(err) == nil {
			return nil, true, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Release implements Device.Release. The reset line is pulled low, which
// powers the chip down.
func (r *MFRC522) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil
	}
	r.released = true

	var errs []error
	if r.reset != nil {
		errs = append(errs, r.reset.Low(), r.reset.Close())
	}
	if r.port != nil {
		errs = append(errs, r.port.Close())
	}
	return errors.Join(errs...)
}

// dropAbsent turns "no tag" style failures into a silent miss.
func dropAbsent(err error) error {
	if errors.Is(err, errNoTag) || errors.Is(err, errTagComms) {
		return nil
	}
	return err
}

// latin1 maps every byte to the code point of the same value.
func latin1(data []byte) string {
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}

// uidToNum folds the 5 uid bytes (4 id bytes plus check byte) into a
// decimal number.
func uidToNum(uid []byte) string {
	var n uint64
	for i := 0; i < 5 && i < len(uid); i++ {
		n = n*256 + uint64(uid[i])
	}
	return strconv.FormatUint(n, 10)
}

// selectTag runs request, anticollision and select, returning the uid.
func (r *MFRC522) selectTag() ([]byte, error) {
	if err := r.request(piccReqIdl); err != nil {
		return nil, err
	}
	uid, err := r.anticoll()
	if err != nil {
		return nil, err
	}
	if err := r.selectUID(uid); err != nil {
		return nil, err
	}
	return uid, nil
}

func (r *MFRC522) request(mode byte) error {
	if err := r.write(regBitFraming, 0x07); err != nil {
		return err
	}
	_, bits, err := r.toCard(pcdTransceive, []byte{mode})
	if err != nil {
		return err
	}
	if bits != 0x10 {
		return errTagComms
	}
	return nil
}

func (r *MFRC522) anticoll() ([]byte, error) {
	if err := r.write(regBitFraming, 0x00); err != nil {
		return nil, err
	}
	back, _, err := r.toCard(pcdTransceive, []byte{piccAnticoll, 0x20})
	if err != nil {
		return nil, err
	}
	if len(back) != 5 {
		return nil, errTagComms
	}

	var check byte
	for _, b := range back[:4] {
		check ^= b
	}
	if check != back[4] {
		return nil, errTagComms
	}
	return back, nil
}

func (r *MFRC522) selectUID(uid []byte) error {
	buf := append([]byte{piccAnticoll, 0x70}, uid[:5]...)
	crc, err := r.calculateCRC(buf)
	if err != nil {
		return err
	}
	_, bits, err := r.toCard(pcdTransceive, append(buf, crc...))
	if err != nil {
		return err
	}
	if bits != 0x18 {
		return errTagComms
	}
	return nil
}

func (r *MFRC522) auth(mode, block byte, key, uid []byte) error {
	buf := append([]byte{mode, block}, key...)
	buf = append(buf, uid[:4]...)
	if _, _, err := r.toCard(pcdAuthent, buf); err != nil {
		return err
	}

	status, err := r.read(regStatus2)
	if err != nil {
		return err
	}
	if status&0x08 == 0 {
		return errTagComms
	}
	return nil
}

func (r *MFRC522) stopCrypto() error {
	return r.clearBits(regStatus2, 0x08)
}

func (r *MFRC522) readBlock(block byte) ([]byte, error) {
	buf := []byte{piccRead, block}
	crc, err := r.calculateCRC(buf)
	if err != nil {
		return nil, err
	}
	back, _, err := r.toCard(pcdTransceive, append(buf, crc...))
	if err != nil {
		return nil, err
	}
	if len(back) != 16 {
		return nil, errTagComms
	}
	return back, nil
}

// toCard runs command with data through the FIFO and returns the reply and
// its length in bits. Bus errors are returned as is; protocol failures as
// errNoTag or errTagComms.
func (r *MFRC522) toCard(command byte, data []byte) ([]byte, int, error) {
	var irqEn, waitIRq byte
	switch command {
	case pcdAuthent:
		irqEn, waitIRq = 0x12, 0x10
	case pcdTransceive:
		irqEn, waitIRq = 0x77, 0x30
	}

	if err := r.write(regCommIEn, irqEn|0x80); err != nil {
		return nil, 0, err
	}
	if err := r.clearBits(regCommIrq, 0x80); err != nil {
		return nil, 0, err
	}
	if err := r.setBits(regFIFOLevel, 0x80); err != nil {
		return nil, 0, err
	}
	if err := r.write(regCommand, pcdIdle); err != nil {
		return nil, 0, err
	}
	for _, b := range data {
		if err := r.write(regFIFOData, b); err != nil {
			return nil, 0, err
		}
	}
	if err := r.write(regCommand, command); err != nil {
		return nil, 0, err
	}
	if command == pcdTransceive {
		if err := r.setBits(regBitFraming, 0x80); err != nil {
			return nil, 0, err
		}
	}

	var n byte
	i := transferLoop
	for ; i > 0; i-- {
		v, err := r.read(regCommIrq)
		if err != nil {
			return nil, 0, err
		}
		n = v
		if n&0x01 != 0 || n&waitIRq != 0 {
			break
		}
	}

	if err := r.clearBits(regBitFraming, 0x80); err != nil {
		return nil, 0, err
	}
	if i == 0 {
		return nil, 0, errNoTag
	}

	errReg, err := r.read(regError)
	if err != nil {
		return nil, 0, err
	}
	if errReg&0x1B != 0 {
		return nil, 0, errTagComms
	}
	if n&irqEn&0x01 != 0 {
		return nil, 0, errNoTag
	}
	if command != pcdTransceive {
		return nil, 0, nil
	}

	level, err := r.read(regFIFOLevel)
	if err != nil {
		return nil, 0, err
	}
	control, err := r.read(regControl)
	if err != nil {
		return nil, 0, err
	}
	lastBits := int(control & 0x07)
	count := int(level)
	bits := count * 8
	if lastBits != 0 {
		bits = (count-1)*8 + lastBits
	}

	if count == 0 {
		count = 1
	}
	if count > 16 {
		count = 16
	}

	back := make([]byte, count)
	for j := range back {
		if back[j], err = r.read(regFIFOData); err != nil {
			return nil, 0, err
		}
	}
	return back, bits, nil
}

func (r *MFRC522) calculateCRC(data []byte) ([]byte, error) {
	if err := r.clearBits(regDivIrq, 0x04); err != nil {
		return nil, err
	}
	if err := r.setBits(regFIFOLevel, 0x80); err != nil {
		return nil, err
	}
	for _, b := range data {
		if err := r.write(regFIFOData, b); err != nil {
			return nil, err
		}
	}
	if err := r.write(regCommand, pcdCalcCRC); err != nil {
		return nil, err
	}

	for i := 0; i < 0xFF; i++ {
		v, err := r.read(regDivIrq)
		if err != nil {
			return nil, err
		}
		if v&0x04 != 0 {
			break
		}
	}

	lo, err := r.read(regCRCResultL)
	if err != nil {
		return nil, err
	}
	hi, err := r.read(regCRCResultM)
	if err != nil {
		return nil, err
	}
	return []byte{lo, hi}, nil
}

func (r *MFRC522) write(addr, val byte) error {
	if r.released {
		return errors.New("mfrc522 released")
	}
	return r.bus.Tx([]byte{(addr << 1) & 0x7E, val}, make([]byte, 2))
}

func (r *MFRC522) read(addr byte) (byte, error) {
	if r.released {
		return 0, errors.New("mfrc522 released")
	}
	rx := make([]byte, 2)
	if err := r.bus.Tx([]byte{((addr << 1) & 0x7E) | 0x80, 0}, rx); err != nil {
		return 0, err
	}
	return rx[1], nil
}

func (r *MFRC522) setBits(addr, mask byte) error {
	v, err := r.read(addr)
	if err != nil {
		return err
	}
	return r.write(addr, v|mask)
}

func (r *MFRC522) clearBits(addr, mask byte) error {
	v, err := r.read(addr)
	if err != nil {
		return err
	}
	return r.write(addr, v&^mask)
}
