package smartdelay_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"storefront.chat/relay/internal/smartdelay"
)

var _ = Describe("Merge", func() {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	It("joins texts with single spaces and keeps receipt bounds", func() {
		batch := smartdelay.Merge("1:messenger:42", []smartdelay.Fragment{
			{ID: "m1", Text: "  want ", ReceivedAt: base},
			{ID: "m2", Text: "black", ReceivedAt: base.Add(time.Second)},
			{ID: "m3", Text: "sneakers", ReceivedAt: base.Add(2 * time.Second)},
		})

		Expect(batch.Key).To(Equal("1:messenger:42"))
		Expect(batch.Text).To(Equal("want black sneakers"))
		Expect(batch.FragmentIDs).To(Equal([]string{"m1", "m2", "m3"}))
		Expect(batch.FragmentCount).To(Equal(3))
		Expect(batch.FirstReceivedAt).To(Equal(base))
		Expect(batch.LastReceivedAt).To(Equal(base.Add(2 * time.Second)))
	})

	It("skips empty texts but keeps their attachments", func() {
		photo := smartdelay.Attachment{Type: "image", URL: "https://cdn.example.com/a.jpg"}
		batch := smartdelay.Merge("k", []smartdelay.Fragment{
			{Text: "this one"},
			{Attachments: []smartdelay.Attachment{photo}},
			{Text: "in red?"},
		})

		Expect(batch.Text).To(Equal("this one in red?"))
		Expect(batch.Attachments).To(ConsistOf(photo))
		Expect(batch.FragmentCount).To(Equal(3))
		Expect(batch.FragmentIDs).To(BeEmpty())
	})
})

var _ = Describe("Dispatcher", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("does nothing for an empty fragment list", func() {
		calls := 0
		d := smartdelay.NewDispatcher(smartdelay.ReplyGeneratorFunc(func(context.Context, smartdelay.Batch) error {
			calls++
			return nil
		}), nil)

		Expect(d.Dispatch(ctx, "k", nil)).To(BeFalse())
		Expect(calls).To(BeZero())
	})

	It("assigns a batch id and calls the generator once", func() {
		var got []smartdelay.Batch
		d := smartdelay.NewDispatcher(smartdelay.ReplyGeneratorFunc(func(_ context.Context, b smartdelay.Batch) error {
			got = append(got, b)
			return nil
		}), nil)

		Expect(d.Dispatch(ctx, "k", []smartdelay.Fragment{{Text: "hi"}})).To(BeTrue())
		Expect(got).To(HaveLen(1))
		Expect(got[0].ID).To(BeNumerically(">", 0))
		Expect(got[0].Text).To(Equal("hi"))
	})

	It("reports the hand-off even when the generator fails", func() {
		calls := 0
		d := smartdelay.NewDispatcher(smartdelay.ReplyGeneratorFunc(func(context.Context, smartdelay.Batch) error {
			calls++
			return errors.New("boom")
		}), nil)

		Expect(d.Dispatch(ctx, "k", []smartdelay.Fragment{{Text: "hi"}})).To(BeTrue())
		Expect(calls).To(Equal(1))
	})
})
