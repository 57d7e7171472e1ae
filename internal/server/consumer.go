package server

import (
	"github.com/tjfontaine/lifecycle-gateway/internal/pipeline"
)

// ConsumerStage copies the consumer identity established by an outer
// authentication layer from header into the exchange. It performs no
// authentication itself.
func ConsumerStage(header string) pipeline.Handlers[struct{}] {
	return pipeline.Handlers[struct{}]{
		Access: func(ex *pipeline.Exchange) *struct{} {
			if header != "" {
				ex.Consumer = ex.Request.Header.Get(header)
			}
			return nil
		},
	}
}
