package service_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"storefront.chat/relay/internal/model"
	"storefront.chat/relay/internal/service"
	"storefront.chat/relay/internal/smartdelay"
)

var _ = Describe("MessageIngestService", func() {
	var (
		ctx       context.Context
		companies *mockCompanyStore
		dedupe    *mockDedupeStore
		scheduler *mockEnqueuer
		svc       service.MessageIngestService
		company   *model.Company
	)

	BeforeEach(func() {
		ctx = context.Background()
		company = &model.Company{ID: 12, Name: "Sneaker Hub", PageID: "page-1", AIEnabled: true}
		companies = &mockCompanyStore{
			getByPageIDFn: func(_ context.Context, pageID string) (*model.Company, error) {
				if pageID == company.PageID {
					return company, nil
				}
				return nil, errors.New("unexpected page")
			},
		}
		dedupe = &mockDedupeStore{}
		scheduler = &mockEnqueuer{}
		svc = service.NewMessageIngestService(companies, dedupe, scheduler, nil)
	})

	params := func(mid, text string) service.MessageIngestParams {
		return service.MessageIngestParams{
			PageID:     "page-1",
			SenderID:   "42",
			MessageID:  mid,
			Text:       text,
			ReceivedAt: time.Unix(1710000000, 0),
		}
	}

	It("schedules the message under the company conversation key", func() {
		result, err := svc.Ingest(ctx, params("m1", "how much?"))
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Key.String()).To(Equal("12:messenger:42"))
		Expect(result.Category).To(Equal(smartdelay.CategoryDirectQuestion))
		Expect(scheduler.calls).To(HaveLen(1))
		Expect(scheduler.calls[0].key).To(Equal("12:messenger:42"))
		Expect(scheduler.calls[0].fragment.ID).To(Equal("m1"))
		Expect(scheduler.calls[0].fragment.ReceivedAt).To(Equal(time.Unix(1710000000, 0)))
	})

	It("drops redelivered message ids", func() {
		_, err := svc.Ingest(ctx, params("m1", "hi"))
		Expect(err).NotTo(HaveOccurred())

		result, err := svc.Ingest(ctx, params("m1", "hi"))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Duplicated).To(BeTrue())
		Expect(scheduler.calls).To(HaveLen(1))
	})

	It("fails open when the dedupe store is down", func() {
		dedupe.err = errors.New("redis: connection refused")

		result, err := svc.Ingest(ctx, params("m1", "hi"))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Duplicated).To(BeFalse())
		Expect(scheduler.calls).To(HaveLen(1))
	})

	It("skips companies with AI disabled", func() {
		company.AIEnabled = false

		result, err := svc.Ingest(ctx, params("m1", "hi"))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Skipped).To(BeTrue())
		Expect(scheduler.calls).To(BeEmpty())
	})

	It("skips empty messages", func() {
		result, err := svc.Ingest(ctx, params("m1", "  "))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Skipped).To(BeTrue())
		Expect(scheduler.calls).To(BeEmpty())
	})

	It("keeps attachment-only messages", func() {
		p := params("m1", "")
		p.Attachments = []smartdelay.Attachment{{Type: "image", URL: "https://cdn.example.com/a.jpg"}}

		result, err := svc.Ingest(ctx, p)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Skipped).To(BeFalse())
		Expect(scheduler.calls[0].fragment.Attachments).To(HaveLen(1))
	})

	It("reports unknown pages", func() {
		companies.getByPageIDFn = nil

		_, err := svc.Ingest(ctx, params("m1", "hi"))
		Expect(err).To(MatchError(service.ErrCompanyNotFound))
	})

	It("requires ids", func() {
		p := params("", "hi")
		_, err := svc.Ingest(ctx, p)
		Expect(err).To(HaveOccurred())
	})

	It("surfaces scheduler refusal", func() {
		scheduler.err = smartdelay.ErrSchedulerClosed

		_, err := svc.Ingest(ctx, params("m1", "hi"))
		Expect(err).To(MatchError(smartdelay.ErrSchedulerClosed))
	})

	It("accepts a redelivery after the scheduler refused the message", func() {
		scheduler.err = smartdelay.ErrSchedulerClosed
		_, err := svc.Ingest(ctx, params("m1", "hi"))
		Expect(err).To(HaveOccurred())
		Expect(dedupe.seen).NotTo(HaveKey("m1"))

		scheduler.err = nil
		result, err := svc.Ingest(ctx, params("m1", "hi"))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Duplicated).To(BeFalse())
		Expect(scheduler.calls).To(HaveLen(1))
	})
})
