package service_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"storefront.chat/relay/internal/service"
	"storefront.chat/relay/internal/smartdelay"
)

var _ = Describe("BatchPublisher", func() {
	It("publishes the batch as a first attempt", func() {
		producer := &mockProducer{}
		publisher := service.NewBatchPublisher(producer)

		batch := smartdelay.Batch{ID: 9, Key: "12:messenger:42", Text: "want black sneakers", FragmentCount: 3}
		Expect(publisher.GenerateReply(context.Background(), batch)).To(Succeed())

		Expect(producer.messages).To(HaveLen(1))
		Expect(producer.messages[0].Batch).To(Equal(batch))
		Expect(producer.messages[0].Attempt).To(Equal(1))
	})

	It("wraps producer failures", func() {
		producer := &mockProducer{err: errors.New("redis down")}
		publisher := service.NewBatchPublisher(producer)

		err := publisher.GenerateReply(context.Background(), smartdelay.Batch{ID: 9})
		Expect(err).To(MatchError(ContainSubstring("publishing batch 9")))
	})
})
