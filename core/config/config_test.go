package config_test

import (
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"storefront.chat/relay/core/config"
)

var _ = Describe("Load", func() {
	setEnv := func(key, value string) {
		prev, had := os.LookupEnv(key)
		Expect(os.Setenv(key, value)).To(Succeed())
		DeferCleanup(func() {
			if had {
				_ = os.Setenv(key, prev)
			} else {
				_ = os.Unsetenv(key)
			}
		})
	}

	unsetEnv := func(key string) {
		prev, had := os.LookupEnv(key)
		Expect(os.Unsetenv(key)).To(Succeed())
		DeferCleanup(func() {
			if had {
				_ = os.Setenv(key, prev)
			}
		})
	}

	BeforeEach(func() {
		// Keeps godotenv from picking up a developer's local .env files.
		setEnv("RELAY_ENV", "test")
		for _, key := range []string{
			"SMART_DELAY_SHORT_FRAGMENT_MS",
			"SMART_DELAY_DIRECT_QUESTION_MS",
			"SMART_DELAY_LONG_STATEMENT_MS",
			"SMART_DELAY_MAX_MS",
			"SMART_DELAY_LONG_THRESHOLD",
			"MESSENGER_APP_SECRET",
			"MESSENGER_VERIFY_TOKEN",
			"REPLY_LLM_API_KEY",
			"REPLY_LLM_PROVIDER",
			"DEDUPE_TTL",
		} {
			unsetEnv(key)
		}
	})

	Context("server", func() {
		It("requires messenger credentials", func() {
			_, err := config.Load(config.ServiceTypeServer)
			Expect(err).To(MatchError(ContainSubstring("MESSENGER_VERIFY_TOKEN")))
		})

		It("applies smart delay defaults", func() {
			setEnv("MESSENGER_APP_SECRET", "secret")
			setEnv("MESSENGER_VERIFY_TOKEN", "verify")

			cfg, err := config.Load(config.ServiceTypeServer)
			Expect(err).NotTo(HaveOccurred())

			Expect(cfg.SmartDelay).To(Equal(config.SmartDelayConfig{
				ShortFragment: 3 * time.Second,
				MaxDelay:      10 * time.Second,
				LongThreshold: 120,
			}))
			Expect(cfg.Pipeline.RedisStream).To(Equal("reply_batches"))
			Expect(cfg.Pipeline.DedupeTTL).To(Equal(24 * time.Hour))
			Expect(cfg.Messenger.GraphURL).To(Equal("https://graph.facebook.com/v19.0"))
		})

		It("reads smart delay overrides in milliseconds", func() {
			setEnv("MESSENGER_APP_SECRET", "secret")
			setEnv("MESSENGER_VERIFY_TOKEN", "verify")
			setEnv("SMART_DELAY_SHORT_FRAGMENT_MS", "1500")
			setEnv("SMART_DELAY_DIRECT_QUESTION_MS", "250")
			setEnv("SMART_DELAY_MAX_MS", "6000")
			setEnv("SMART_DELAY_LONG_THRESHOLD", "80")
			setEnv("DEDUPE_TTL", "2h")

			cfg, err := config.Load(config.ServiceTypeServer)
			Expect(err).NotTo(HaveOccurred())

			Expect(cfg.SmartDelay.ShortFragment).To(Equal(1500 * time.Millisecond))
			Expect(cfg.SmartDelay.DirectQuestion).To(Equal(250 * time.Millisecond))
			Expect(cfg.SmartDelay.MaxDelay).To(Equal(6 * time.Second))
			Expect(cfg.SmartDelay.LongThreshold).To(Equal(80))
			Expect(cfg.Pipeline.DedupeTTL).To(Equal(2 * time.Hour))
		})

		It("keeps the default on unparsable values", func() {
			setEnv("MESSENGER_APP_SECRET", "secret")
			setEnv("MESSENGER_VERIFY_TOKEN", "verify")
			setEnv("SMART_DELAY_SHORT_FRAGMENT_MS", "soon")

			cfg, err := config.Load(config.ServiceTypeServer)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.SmartDelay.ShortFragment).To(Equal(3 * time.Second))
		})
	})

	Context("worker", func() {
		It("requires an LLM key", func() {
			_, err := config.Load(config.ServiceTypeWorker)
			Expect(err).To(MatchError(ContainSubstring("REPLY_LLM_API_KEY")))
		})

		It("rejects an unknown provider", func() {
			setEnv("REPLY_LLM_API_KEY", "key")
			setEnv("REPLY_LLM_PROVIDER", "mistral")

			_, err := config.Load(config.ServiceTypeWorker)
			Expect(err).To(HaveOccurred())
		})

		It("does not need messenger verification settings", func() {
			setEnv("REPLY_LLM_API_KEY", "key")
			setEnv("REPLY_LLM_PROVIDER", "anthropic")

			cfg, err := config.Load(config.ServiceTypeWorker)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.ReplyLLM.Enabled()).To(BeTrue())
			Expect(cfg.Pipeline.RedisConsumer).To(Equal("worker"))
		})
	})
})
