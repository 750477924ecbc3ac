package scan

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"rfidscan/reader"
)

var errBrokenPipe = errors.New("broken pipe")

// failingWriter is a client that hung up before the response was written.
type failingWriter struct {
	header http.Header
	status int
}

func (w *failingWriter) Header() http.Header { return w.header }

func (w *failingWriter) WriteHeader(status int) { w.status = status }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return 0, errBrokenPipe
}

type recordingNotifier struct {
	mu       sync.Mutex
	started  []string
	finished []Event
}

func (n *recordingNotifier) ScanStarted(scanID string, mode Mode) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = append(n.started, scanID)
}

func (n *recordingNotifier) ScanFinished(evt Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finished = append(n.finished, evt)
}

var _ = Describe("Handler", func() {
	var (
		dev      *fakeDevice
		logs     *observer.ObservedLogs
		logger   *zap.Logger
		notifier *recordingNotifier
		timeout  time.Duration
	)

	BeforeEach(func() {
		dev = &fakeDevice{}
		var core zapcore.Core
		core, logs = observer.New(zapcore.DebugLevel)
		logger = zap.New(core)
		notifier = &recordingNotifier{}
		timeout = 5 * time.Second
	})

	serve := func(h http.Handler, target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	newHandler := func(d reader.Device) *Handler {
		return NewHandler(d, logger, WithTimeout(timeout), WithNotifier(notifier))
	}

	decode := func(rec *httptest.ResponseRecorder) map[string]interface{} {
		var body map[string]interface{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		return body
	}

	Describe("default read path", func() {
		It("returns the id and the text without null characters", func() {
			dev.reads = []fakeRead{miss(), hit("123456789", "hello\u0000world")}

			rec := serve(newHandler(dev), "/scan")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(HavePrefix("application/json"))
			Expect(decode(rec)).To(Equal(map[string]interface{}{
				"id":   "123456789",
				"text": "helloworld",
			}))
		})

		It("always includes text, empty when the tag has none", func() {
			dev.reads = []fakeRead{hit("555", "")}

			rec := serve(newHandler(dev), "/scan")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(Equal(map[string]interface{}{
				"id":   "555",
				"text": "",
			}))
		})

		It("does not escape HTML characters in the text", func() {
			dev.reads = []fakeRead{hit("1", "<a&b>")}

			rec := serve(newHandler(dev), "/scan")
			Expect(rec.Body.String()).To(ContainSubstring(`"<a&b>"`))
		})

		It("logs the scanned id at info level", func() {
			dev.reads = []fakeRead{hit("123", "")}

			serve(newHandler(dev), "/scan")
			entries := logs.FilterMessage("Scanned ID").All()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Level).To(Equal(zapcore.InfoLevel))
			Expect(entries[0].ContextMap()).To(HaveKeyWithValue("tag_id", "123"))
			Expect(entries[0].ContextMap()).To(HaveKey("scan_id"))
		})
	})

	Describe("timeout", func() {
		It("responds 408 with an empty body after the timeout", func() {
			timeout = time.Second

			start := time.Now()
			rec := serve(newHandler(dev), "/scan")
			elapsed := time.Since(start)

			Expect(rec.Code).To(Equal(http.StatusRequestTimeout))
			Expect(rec.Body.Len()).To(BeZero())
			Expect(elapsed).To(BeNumerically(">=", time.Second))
			Expect(elapsed).To(BeNumerically("<", 1100*time.Millisecond))
		})

		It("logs a warning", func() {
			timeout = 10 * time.Millisecond

			serve(newHandler(dev), "/scan")
			entries := logs.FilterMessage("No ID found before timeout").All()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Level).To(Equal(zapcore.WarnLevel))
		})
	})

	Describe("device errors", func() {
		It("responds 400 with the error message and logs an error", func() {
			dev.reads = []fakeRead{fail(errBoom)}

			rec := serve(newHandler(dev), "/scan")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(Equal("boom"))
			Expect(rec.Header().Get("Content-Type")).To(HavePrefix("text/plain"))

			entries := logs.FilterLevelExact(zapcore.ErrorLevel).All()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].ContextMap()).To(HaveKeyWithValue("error", "boom"))
		})
	})

	Describe("ntag203 read path", func() {
		var pdev fakePageDevice

		BeforeEach(func() {
			pdev = fakePageDevice{fakeDevice: dev}
		})

		It("returns the uid without a text field", func() {
			pdev.pages = []fakeRead{miss(), page([]byte{0x04, 0x11, 0x22, 0x99, 0x33, 0x44, 0x55, 0x66, 0, 0, 0, 0, 0, 0, 0, 0})}

			rec := serve(newHandler(pdev), "/scan?tag=ntag203")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(Equal(map[string]interface{}{
				"id": "04112233445566",
			}))
		})

		It("matches the query value case insensitively", func() {
			pdev.pages = []fakeRead{page([]byte{1, 2, 3, 0, 4, 5, 6, 7})}

			rec := serve(newHandler(pdev), "/scan?tag=NTAG203")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(HaveKeyWithValue("id", "01020304050607"))
			Expect(dev.Calls()).To(Equal(1))
		})

		It("uses the default path for other tag values", func() {
			dev.reads = []fakeRead{hit("77", "")}

			rec := serve(newHandler(pdev), "/scan?tag=mifare")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(HaveKeyWithValue("text", ""))
		})

		It("responds 400 when the tag is not an NTAG203", func() {
			pdev.pages = []fakeRead{page(nil)}

			rec := serve(newHandler(pdev), "/scan?tag=ntag203")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(Equal(ErrNotNTAG203.Error()))

			entries := logs.FilterMessage("Error during operation").All()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Level).To(Equal(zapcore.ErrorLevel))
		})

		It("responds 400 when the reader cannot read pages", func() {
			rec := serve(newHandler(dev), "/scan?tag=ntag203")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(Equal(ErrPagesUnsupported.Error()))
			Expect(dev.Calls()).To(BeZero())
		})
	})

	Describe("broken connections", func() {
		It("logs a response that cannot be written", func() {
			dev.reads = []fakeRead{hit("9", "")}

			w := &failingWriter{header: http.Header{}}
			newHandler(dev).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scan", nil))

			Expect(w.status).To(Equal(http.StatusOK))
			entries := logs.FilterMessage("Failed to write response").All()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Level).To(Equal(zapcore.DebugLevel))
			Expect(entries[0].ContextMap()).To(HaveKeyWithValue("error", errBrokenPipe.Error()))
			Expect(notifier.finished).To(HaveLen(1))
			Expect(notifier.finished[0].Status).To(Equal(StatusFound))
		})
	})

	Describe("notifications", func() {
		It("reports start and outcome of every scan", func() {
			dev.reads = []fakeRead{hit("1", ""), fail(errBoom)}
			h := newHandler(dev)

			serve(h, "/scan")
			serve(h, "/scan")

			Expect(notifier.started).To(HaveLen(2))
			Expect(notifier.finished).To(HaveLen(2))
			Expect(notifier.finished[0].Status).To(Equal(StatusFound))
			Expect(notifier.finished[0].TagID).To(Equal("1"))
			Expect(notifier.finished[0].ScanID).To(Equal(notifier.started[0]))
			Expect(notifier.finished[1].Status).To(Equal(StatusError))
			Expect(notifier.finished[1].Err).To(MatchError(errBoom))
		})

		It("reports timeouts", func() {
			timeout = 0

			serve(newHandler(dev), "/scan")
			Expect(notifier.finished).To(HaveLen(1))
			Expect(notifier.finished[0].Status).To(Equal(StatusTimeout))
		})
	})

	Describe("concurrent scans", func() {
		It("never touches the device from two requests at once", func() {
			timeout = 30 * time.Millisecond
			dev.hold = time.Millisecond
			h := newHandler(dev)

			var wg sync.WaitGroup
			for i := 0; i < 4; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					rec := serve(h, "/scan")
					Expect(rec.Code).To(Equal(http.StatusRequestTimeout))
				}()
			}
			wg.Wait()

			Expect(dev.maxInFlight).To(BeEquivalentTo(1))
		})
	})

	Describe("shutdown", func() {
		It("stops an in-flight scan when the handler context ends", func() {
			ctx, cancel := context.WithCancel(context.Background())
			h := NewHandler(dev, logger, WithTimeout(5*time.Second), WithContext(ctx))
			time.AfterFunc(20*time.Millisecond, cancel)

			start := time.Now()
			rec := serve(h, "/scan")
			Expect(time.Since(start)).To(BeNumerically("<", time.Second))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("keeps scanning when the client goes away", func() {
			dev.reads = []fakeRead{miss(), miss(), hit("3", "")}
			h := NewHandler(dev, logger, WithTimeout(time.Second))

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			req := httptest.NewRequest(http.MethodGet, "/scan", nil).WithContext(ctx)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(HaveKeyWithValue("id", "3"))
		})
	})
})
