package registry_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/proxyforge/proxy-rotator/internal/registry"
)

var _ = Describe("Watcher", func() {
	var (
		tempDir   string
		statePath string
		log       *slog.Logger
		reg       *registry.Registry
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "watcher-test-*")
		Expect(err).NotTo(HaveOccurred())

		statePath = filepath.Join(tempDir, "gateways.json")
		log = slog.New(slog.NewTextHandler(os.Stdout, nil))
		reg = registry.New(statePath, false, log)
		reg.Load()
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	It("should reload the registry when the state file is replaced", func() {
		watcher, err := registry.NewWatcher(reg, log)
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		watcherDone := make(chan error, 1)
		go func() {
			watcherDone <- watcher.Start(ctx)
		}()

		// An external tool writing the same file: a second registry handle
		// saving through the atomic temp+rename path.
		external := registry.New(statePath, false, log)
		external.Load()
		Expect(external.Add(newEndpoint("provisioned", "us-east-1"))).To(Succeed())

		Eventually(reg.Len, 3*time.Second, 20*time.Millisecond).Should(Equal(1))

		cancel()
		Eventually(watcherDone).Should(Receive(BeNil()))
	})

	It("should fall back to the backup when a reload hits a corrupt file", func() {
		backed := registry.New(statePath, true, log)
		backed.Load()
		Expect(backed.Add(newEndpoint("e1", "us-east-1"))).To(Succeed())
		Expect(backed.Add(newEndpoint("e2", "us-east-1"))).To(Succeed())

		watcher, err := registry.NewWatcher(backed, log)
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go watcher.Start(ctx)

		Expect(os.WriteFile(statePath, []byte("{not json"), 0o644)).To(Succeed())

		// The .bak copy holds the state before the latest save.
		Eventually(backed.Len, 3*time.Second, 20*time.Millisecond).Should(Equal(1))
	})

	It("should fail when the state directory does not exist", func() {
		missing := registry.New(filepath.Join(tempDir, "nope", "gateways.json"), false, log)
		_, err := registry.NewWatcher(missing, log)
		Expect(err).To(HaveOccurred())
	})
})
