package reader

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("MFRC522", func() {
	var (
		bus  *simBus
		r    *MFRC522
		card *simCard
	)

	BeforeEach(func() {
		bus = &simBus{}
		var err error
		r, err = NewMFRC522WithBus(bus)
		Expect(err).NotTo(HaveOccurred())

		card = &simCard{
			uid: []byte{0x12, 0x34, 0x56, 0x78, 0x08},
			blocks: map[byte][]byte{
				0:  {0x04, 0xA1, 0xB2, 0x99, 0xC3, 0xD4, 0xE5, 0xF6, 0, 0, 0, 0, 0, 0, 0, 0},
				8:  block("hello"),
				9:  block(""),
				10: block(""),
			},
		}
	})

	It("switches the antenna on during init", func() {
		Expect(bus.regs[regTxControl] & 0x03).To(Equal(byte(0x03)))
	})

	Describe("TryRead", func() {
		It("reports nothing while no tag is present", func() {
			tag, ok, err := r.TryRead()
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(tag).To(Equal(Tag{}))
		})

		It("reads the id and the text blocks", func() {
			bus.present(card)

			tag, ok, err := r.TryRead()
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(tag.ID).To(Equal("78187493384"))
			Expect(tag.Text).To(Equal("hello" + strings.Repeat("\x00", 43)))
			Expect(bus.regs[regStatus2] & 0x08).To(BeZero())
		})

		It("returns the id with empty text when authentication is refused", func() {
			card.refuseAuth = true
			bus.present(card)

			tag, ok, err := r.TryRead()
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(tag).To(Equal(Tag{ID: "78187493384"}))
		})

		It("ignores a tag with a bad check byte", func() {
			card.uid = []byte{0x12, 0x34, 0x56, 0x78, 0x00}
			bus.present(card)

			_, ok, err := r.TryRead()
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("fails the read when the bus breaks during the text blocks", func() {
			bus.present(card)
			broken := byte(9)
			bus.breakOnBlock = &broken

			tag, ok, err := r.TryRead()
			Expect(err).To(MatchError(errBus))
			Expect(ok).To(BeFalse())
			Expect(tag).To(Equal(Tag{}))
		})

		It("skips text blocks the tag does not answer", func() {
			delete(card.blocks, 9)
			bus.present(card)

			tag, ok, err := r.TryRead()
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(tag.Text).To(Equal("hello" + strings.Repeat("\x00", 27)))
		})

		It("returns bus failures", func() {
			bus.failTx = errBus

			_, ok, err := r.TryRead()
			Expect(err).To(MatchError(errBus))
			Expect(ok).To(BeFalse())
		})
	})

	Describe("TryReadPage", func() {
		It("reads raw page data", func() {
			bus.present(card)

			data, ok, err := r.TryReadPage(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(data).To(Equal(card.blocks[0]))
		})

		It("reports a present tag that refuses the read with empty data", func() {
			card.refusePages = true
			bus.present(card)

			data, ok, err := r.TryReadPage(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(data).To(BeEmpty())
		})

		It("reports nothing while no tag is present", func() {
			_, ok, err := r.TryReadPage(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Release", func() {
		It("is idempotent and stops further reads", func() {
			Expect(r.Release()).To(Succeed())
			Expect(r.Release()).To(Succeed())

			_, _, err := r.TryRead()
			Expect(err).To(MatchError(ContainSubstring("released")))
		})
	})

	It("fails to initialise on a broken bus", func() {
		_, err := NewMFRC522WithBus(&simBus{failTx: errBus})
		Expect(err).To(MatchError(errBus))
	})
})

var _ = Describe("uidToNum", func() {
	It("folds the first five bytes", func() {
		Expect(uidToNum([]byte{0x12, 0x34, 0x56, 0x78, 0x08})).To(Equal("78187493384"))
		Expect(uidToNum([]byte{0, 0, 0, 0, 1})).To(Equal("1"))
		Expect(uidToNum([]byte{1, 2, 3, 4, 5, 6, 7})).To(Equal(uidToNum([]byte{1, 2, 3, 4, 5})))
	})
})

var _ = Describe("latin1", func() {
	It("maps bytes to code points", func() {
		Expect(latin1([]byte{'h', 'i', 0xE9, 0})).To(Equal("hié\x00"))
	})
})
