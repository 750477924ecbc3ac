package indicator

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("New", func() {
	It("returns a Noop when nothing is configured", func() {
		ind, err := New(Config{})
		Expect(err).NotTo(HaveOccurred())
		Expect(ind).To(BeAssignableToTypeOf(&Noop{}))
		Expect(ind.Release()).To(Succeed())
	})

	It("fails when the neopixel pipe is missing", func() {
		_, err := New(Config{NeopixelPipe: filepath.Join(GinkgoT().TempDir(), "missing")})
		Expect(err).To(MatchError(ContainSubstring("open neopixel pipe")))
	})
})

var _ = Describe("GPIO", func() {
	var (
		green, yellow, red *fakeOutput
		g                  *GPIO
	)

	BeforeEach(func() {
		green, yellow, red = &fakeOutput{}, &fakeOutput{}, &fakeOutput{}
		g = NewGPIOWithOutputs(green, yellow, red)
	})

	lit := func() []bool { return []bool{green.on, yellow.on, red.on} }

	DescribeTable("shows each state",
		func(show func(*GPIO), want []bool) {
			green.on, yellow.on, red.on = true, true, true
			show(g)
			Expect(lit()).To(Equal(want))
		},
		Entry("idle", (*GPIO).Idle, []bool{false, false, false}),
		Entry("scanning", (*GPIO).Scanning, []bool{false, true, false}),
		Entry("found", (*GPIO).Found, []bool{true, false, false}),
		Entry("timed out", (*GPIO).TimedOut, []bool{false, true, true}),
		Entry("failed", (*GPIO).Failed, []bool{false, false, true}),
		Entry("connection lost", (*GPIO).ConnectionLost, []bool{false, true, true}),
		Entry("shutdown", (*GPIO).Shutdown, []bool{false, false, false}),
	)

	It("works with some LEDs missing", func() {
		g = NewGPIOWithOutputs(green, nil, nil)
		g.TimedOut()
		g.Found()
		Expect(green.on).To(BeTrue())
	})

	It("turns everything off and closes each pin once on release", func() {
		g.Found()
		Expect(g.Release()).To(Succeed())
		Expect(g.Release()).To(Succeed())
		Expect(lit()).To(Equal([]bool{false, false, false}))
		Expect(green.closed).To(Equal(1))
		Expect(red.closed).To(Equal(1))

		g.Found()
		Expect(green.on).To(BeFalse())
	})
})

var _ = Describe("Neopixel", func() {
	var (
		pipe *bufferCloser
		n    *Neopixel
	)

	BeforeEach(func() {
		pipe = &bufferCloser{}
		n = NewNeopixelWriter(pipe)
	})

	It("idles as connection lost until connected", func() {
		n.Idle()
		Expect(pipe.String()).To(Equal(neoConnectionLost))

		pipe.Reset()
		n.Connected()
		n.Idle()
		Expect(pipe.String()).To(Equal(neoNormalIdle + neoNormalIdle))

		pipe.Reset()
		n.ConnectionLost()
		n.Idle()
		Expect(pipe.String()).To(Equal(neoConnectionLost + neoConnectionLost))
	})

	It("writes the outcome patterns", func() {
		n.Scanning()
		n.Found()
		n.TimedOut()
		n.Failed()
		n.Shutdown()
		Expect(pipe.String()).To(Equal(neoScanning + neoFound + neoTimedOut + neoFailed + neoTerminated))
	})

	It("stops writing after release", func() {
		Expect(n.Release()).To(Succeed())
		Expect(pipe.closed).To(BeTrue())
		n.Found()
		Expect(pipe.Len()).To(BeZero())
		Expect(n.Release()).To(Succeed())
	})
})

var _ = Describe("Multi", func() {
	It("fans out to every indicator", func() {
		green := &fakeOutput{}
		pipe := &bufferCloser{}
		m := NewMulti(NewGPIOWithOutputs(green, nil, nil), NewNeopixelWriter(pipe))

		m.Found()
		Expect(green.on).To(BeTrue())
		Expect(pipe.String()).To(Equal(neoFound))
	})

	It("releases every indicator and reports failures", func() {
		first, second := &failingIndicator{}, &failingIndicator{}
		m := NewMulti(first, second)

		Expect(m.Release()).To(MatchError(ContainSubstring("stuck")))
		Expect(first.released).To(BeTrue())
		Expect(second.released).To(BeTrue())
	})
})
