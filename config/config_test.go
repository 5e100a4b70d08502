package config_test

import (
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"

	"github.com/proxyforge/proxy-rotator/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Load", func() {
	var (
		tempDir string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tempDir)).To(Succeed())

		viper.Reset()
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tempDir)
		viper.Reset()
	})

	writeConfig := func(yaml string) {
		Expect(os.WriteFile("config.yaml", []byte(yaml), 0o644)).To(Succeed())
	}

	It("should fall back to defaults when no config file exists", func() {
		cfg, err := config.Load()
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.Server.Address).To(Equal("127.0.0.1:8888"))
		Expect(cfg.Server.Environment).To(Equal(config.EnvDev))
		Expect(cfg.Proxy.RequestTimeout).To(Equal("10s"))
		Expect(cfg.Proxy.PoolSize).To(Equal(100))
		Expect(cfg.Proxy.Retry.Enabled).To(BeFalse())
		Expect(cfg.Strategy.Type).To(Equal("round-robin"))
		Expect(cfg.Breaker.FailureThreshold).To(Equal(5))
		Expect(cfg.Breaker.RecoveryTimeout).To(Equal("60s"))
		Expect(cfg.HealthCheck.Enabled).To(BeFalse())
		Expect(cfg.State.File).To(Equal("state/gateways.json"))
		Expect(cfg.State.BackupOnWrite).To(BeTrue())
		Expect(cfg.State.Watch).To(BeTrue())
		Expect(cfg.Logging.Level).To(Equal(config.LogLevelInfo))
	})

	It("should apply values from config.yaml over the defaults", func() {
		writeConfig(`
server:
  address: "0.0.0.0:9999"
  environment: "prod"
proxy:
  request_timeout: "30s"
  pool_size: 10
strategy:
  type: "weighted"
breaker:
  failure_threshold: 2
  recovery_timeout: "5s"
logging:
  level: "debug"
`)

		cfg, err := config.Load()
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.Server.Address).To(Equal("0.0.0.0:9999"))
		Expect(cfg.Server.Environment).To(Equal(config.EnvProd))
		Expect(cfg.Proxy.RequestTimeout).To(Equal("30s"))
		Expect(cfg.Proxy.PoolSize).To(Equal(10))
		Expect(cfg.Strategy.Type).To(Equal("weighted"))
		Expect(cfg.Breaker.FailureThreshold).To(Equal(2))
		Expect(cfg.Breaker.RecoveryTimeout).To(Equal("5s"))
		Expect(cfg.Logging.Level).To(Equal(config.LogLevelDebug))
	})

	It("should reject an unknown strategy", func() {
		writeConfig(`
strategy:
  type: "fastest-first"
`)

		_, err := config.Load()
		Expect(err).To(HaveOccurred())
	})

	It("should reject a malformed listen address", func() {
		writeConfig(`
server:
  address: "no-port-here"
`)

		_, err := config.Load()
		Expect(err).To(HaveOccurred())
	})

	It("should reject an unparseable duration", func() {
		writeConfig(`
proxy:
  request_timeout: "ten seconds"
`)

		_, err := config.Load()
		Expect(err).To(HaveOccurred())
	})

	It("should reject an unknown environment", func() {
		writeConfig(`
server:
  environment: "qa"
`)

		_, err := config.Load()
		Expect(err).To(HaveOccurred())
	})

	It("should reject an unknown log level", func() {
		writeConfig(`
logging:
  level: "verbose"
`)

		_, err := config.Load()
		Expect(err).To(HaveOccurred())
	})

	Describe("retry settings", func() {
		It("should validate retry settings only when retry is enabled", func() {
			writeConfig(`
proxy:
  retry:
    enabled: false
    max_attempts: 99
`)

			_, err := config.Load()
			Expect(err).NotTo(HaveOccurred())
		})

		It("should cap retry attempts at three", func() {
			writeConfig(`
proxy:
  retry:
    enabled: true
    max_attempts: 5
`)

			_, err := config.Load()
			Expect(err).To(HaveOccurred())
		})

		It("should accept a full retry block", func() {
			writeConfig(`
proxy:
  retry:
    enabled: true
    max_attempts: 2
    base_delay: "50ms"
    max_delay: "1s"
    jitter: 0.2
`)

			cfg, err := config.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Proxy.Retry.MaxAttempts).To(Equal(2))
			Expect(cfg.Proxy.Retry.Jitter).To(Equal(0.2))
		})

		It("should reject jitter above one", func() {
			writeConfig(`
proxy:
  retry:
    enabled: true
    max_attempts: 2
    base_delay: "50ms"
    max_delay: "1s"
    jitter: 1.5
`)

			_, err := config.Load()
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("health check settings", func() {
		It("should require a valid interval only when enabled", func() {
			writeConfig(`
health_check:
  enabled: false
  interval: "often"
`)

			_, err := config.Load()
			Expect(err).NotTo(HaveOccurred())
		})

		It("should reject a bad interval when enabled", func() {
			writeConfig(`
health_check:
  enabled: true
  interval: "often"
`)

			_, err := config.Load()
			Expect(err).To(HaveOccurred())
		})
	})

	It("should reject an empty state file path", func() {
		writeConfig(`
state:
  file: ""
`)

		_, err := config.Load()
		Expect(err).To(HaveOccurred())
	})
})
