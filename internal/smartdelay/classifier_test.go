package smartdelay_test

import (
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"storefront.chat/relay/internal/smartdelay"
)

var _ = Describe("Classifier", func() {
	var classifier smartdelay.Classifier

	BeforeEach(func() {
		cfg := smartdelay.DefaultConfig()
		cfg.LongThreshold = 40
		classifier = smartdelay.NewClassifier(cfg)
	})

	DescribeTable("categorizes fragments",
		func(text string, expected smartdelay.Category) {
			Expect(classifier.Classify(text).Category).To(Equal(expected))
		},
		Entry("single word", "want", smartdelay.CategoryShortFragment),
		Entry("short phrase", "black sneakers", smartdelay.CategoryShortFragment),
		Entry("empty text", "", smartdelay.CategoryShortFragment),
		Entry("whitespace only", "  \t\n ", smartdelay.CategoryShortFragment),
		Entry("number fragment", "size 42", smartdelay.CategoryShortFragment),
		Entry("ends with question mark", "do they run small?", smartdelay.CategoryDirectQuestion),
		Entry("question mark with trailing spaces", "available?   ", smartdelay.CategoryDirectQuestion),
		Entry("arabic question mark", "إيه سعره؟", smartdelay.CategoryDirectQuestion),
		Entry("interrogative marker without punctuation", "how much for the red one", smartdelay.CategoryDirectQuestion),
		Entry("availability marker", "Is it available in black", smartdelay.CategoryDirectQuestion),
		Entry("marker is case insensitive", "WHEN does it ship", smartdelay.CategoryDirectQuestion),
		Entry("marker needs a whole word", "whenever works", smartdelay.CategoryShortFragment),
		Entry("arabic marker", "الكوتشي ده بكام", smartdelay.CategoryDirectQuestion),
		Entry("arabic greeting", "مرحبا", smartdelay.CategoryShortFragment),
		Entry("arabic fragment", "عايز كوتشي", smartdelay.CategoryShortFragment),
		Entry("long statement", "I ordered the black sneakers last week and the box arrived damaged", smartdelay.CategoryLongStatement),
		Entry("long arabic statement counts runes", strings.Repeat("ك", 41), smartdelay.CategoryLongStatement),
		Entry("exactly at threshold stays short", strings.Repeat("a", 40), smartdelay.CategoryShortFragment),
		Entry("long question is a question", "I ordered the black sneakers last week, when will they arrive", smartdelay.CategoryDirectQuestion),
	)

	It("returns the configured delay for each category", func() {
		cfg := smartdelay.Config{
			Delays: smartdelay.Delays{
				ShortFragment:  3 * time.Second,
				DirectQuestion: 200 * time.Millisecond,
				LongStatement:  100 * time.Millisecond,
			},
			MaxDelay:      10 * time.Second,
			LongThreshold: 10,
		}
		c := smartdelay.NewClassifier(cfg)

		Expect(c.Classify("hey").Delay).To(Equal(3 * time.Second))
		Expect(c.Classify("price?").Delay).To(Equal(200 * time.Millisecond))
		Expect(c.Classify("this is a rather long line").Delay).To(Equal(100 * time.Millisecond))
	})

	It("treats questions and long statements as immediate by default", func() {
		c := smartdelay.NewClassifier(smartdelay.DefaultConfig())

		Expect(c.Classify("how much does it cost?").Delay).To(BeZero())
		Expect(c.Classify(strings.Repeat("word ", 40)).Delay).To(BeZero())
		Expect(c.Classify("want").Delay).To(Equal(smartdelay.DefaultShortFragmentDelay))
	})

	It("is deterministic", func() {
		first := classifier.Classify("عايز كوتشي")
		for range 10 {
			Expect(classifier.Classify("عايز كوتشي")).To(Equal(first))
		}
	})
})

var _ = Describe("Config", func() {
	It("accepts the defaults", func() {
		Expect(smartdelay.DefaultConfig().Validate()).To(Succeed())
	})

	DescribeTable("rejects invalid values",
		func(mutate func(*smartdelay.Config)) {
			cfg := smartdelay.DefaultConfig()
			mutate(&cfg)
			Expect(cfg.Validate()).To(MatchError(smartdelay.ErrInvalidConfig))
		},
		Entry("negative short delay", func(c *smartdelay.Config) { c.Delays.ShortFragment = -time.Millisecond }),
		Entry("negative question delay", func(c *smartdelay.Config) { c.Delays.DirectQuestion = -time.Millisecond }),
		Entry("negative long delay", func(c *smartdelay.Config) { c.Delays.LongStatement = -time.Millisecond }),
		Entry("zero max delay", func(c *smartdelay.Config) { c.MaxDelay = 0 }),
		Entry("zero long threshold", func(c *smartdelay.Config) { c.LongThreshold = 0 }),
	)
})
