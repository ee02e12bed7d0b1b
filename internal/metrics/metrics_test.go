package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"storefront.chat/relay/internal/metrics"
	"storefront.chat/relay/internal/smartdelay"
)

var _ = Describe("SmartDelay", func() {
	var (
		reg *prometheus.Registry
		m   *metrics.SmartDelay
	)

	BeforeEach(func() {
		reg = prometheus.NewRegistry()
		m = metrics.NewSmartDelay(reg)
	})

	It("counts fragments per category", func() {
		m.FragmentClassified(smartdelay.CategoryShortFragment)
		m.FragmentClassified(smartdelay.CategoryShortFragment)
		m.FragmentClassified(smartdelay.CategoryDirectQuestion)

		Expect(testutil.CollectAndCount(reg, "relay_smart_delay_fragments_total")).To(Equal(2))
	})

	It("counts batches and generator failures by reason", func() {
		batch := smartdelay.Batch{FragmentCount: 3, FirstReceivedAt: time.Now().Add(-time.Second)}
		m.BatchDispatched(smartdelay.FlushTimer, batch, nil)
		m.BatchDispatched(smartdelay.FlushImmediate, batch, errors.New("redis down"))

		Expect(testutil.CollectAndCount(reg, "relay_smart_delay_batches_total")).To(Equal(2))
		Expect(testutil.CollectAndCount(reg, "relay_smart_delay_generator_failures_total")).To(Equal(1))
		Expect(testutil.CollectAndCount(reg, "relay_smart_delay_batch_fragments")).To(Equal(1))
	})

	It("reports pending conversations from the supplied func", func() {
		pending := 4
		metrics.RegisterPending(reg, func() int { return pending })

		families, err := reg.Gather()
		Expect(err).NotTo(HaveOccurred())

		var value float64
		for _, f := range families {
			if f.GetName() == "relay_smart_delay_pending_conversations" {
				value = f.GetMetric()[0].GetGauge().GetValue()
			}
		}
		Expect(value).To(Equal(4.0))
	})
})

var _ = Describe("Handler", func() {
	It("serves the registry in the text exposition format", func() {
		reg := metrics.NewRegistry()
		metrics.NewSmartDelay(reg).FragmentClassified(smartdelay.CategoryLongStatement)

		srv := httptest.NewServer(metrics.Handler(reg))
		defer srv.Close()

		resp, err := http.Get(srv.URL)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring(`relay_smart_delay_fragments_total{category="LONG_STATEMENT"} 1`))
		Expect(string(body)).To(ContainSubstring("go_goroutines"))
	})
})
