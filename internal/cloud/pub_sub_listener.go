// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cloud provides components for interacting with Google Cloud services.
// This file defines the Pub/Sub listener that feeds bucket notifications into
// a command chain.
//
// Logic Flow:
//  1. A listener is created per configured subscription, initially without a command.
//  2. The server attaches the auto-analyse workflow with SetCommand.
//  3. Listen starts a goroutine that receives messages until the context ends.
//  4. Each message becomes a fresh cor.Context: the body goes into cor.CtxIn and
//     the message attributes under GetPubSubAttributesName().
//  5. A chain without errors acks the message. A failed chain nacks it so that
//     Pub/Sub redelivers it according to the subscription's retry policy.
package cloud

import (
	"context"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/cor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PubSubListener connects one subscription to the command that processes its
// messages.
type PubSubListener struct {
	client       *pubsub.Client
	subscription *pubsub.Subscription
	command      cor.Command
}

// NewPubSubListener creates a listener for subscriptionID. The command may be
// nil and attached later with SetCommand.
//
// Inputs:
//   - pubsubClient: An authenticated *pubsub.Client.
//   - subscriptionID: The id of the subscription to receive from.
//   - command: The command run for every message.
//
// Outputs:
//   - *PubSubListener: The listener.
//   - error: Always nil; kept so callers handle construction failures uniformly.
func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	command cor.Command,
) (*PubSubListener, error) {
	return &PubSubListener{
		client:       pubsubClient,
		subscription: pubsubClient.Subscription(subscriptionID),
		command:      command,
	}, nil
}

// SetCommand attaches the processing command if none is set yet.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// Listen receives messages in the background until ctx is cancelled.
func (m *PubSubListener) Listen(ctx context.Context) {
	slog.Info("listening", "subscription", m.subscription.String())

	go func() {
		tracer := otel.Tracer("message-listener")

		err := m.subscription.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
			spanCtx, span := tracer.Start(msgCtx, "receive-message")
			defer span.End()
			span.SetAttributes(
				attribute.String("message.id", msg.ID),
				attribute.String("message.event", msg.Attributes[EventTypeAttribute]),
				attribute.String("message.object", msg.Attributes[ObjectIdAttribute]),
			)
			slog.DebugContext(spanCtx, "received message", "id", msg.ID, "attributes", msg.Attributes)

			if m.command == nil {
				slog.WarnContext(spanCtx, "no command attached to listener, message will be redelivered", "subscription", m.subscription.String())
				msg.Nack()
				return
			}

			chainCtx := cor.NewBaseContext()
			chainCtx.SetContext(spanCtx)
			chainCtx.Add(cor.CtxIn, string(msg.Data))
			chainCtx.Add(GetPubSubAttributesName(), msg.Attributes)
			defer chainCtx.Close()

			m.command.Execute(chainCtx)

			if err := chainCtx.Err(); err != nil {
				span.SetStatus(codes.Error, "failed")
				slog.ErrorContext(spanCtx, "error executing chain", "id", msg.ID, "error", err)
				msg.Nack()
				return
			}
			span.SetStatus(codes.Ok, "success")
			msg.Ack()
		})

		if err != nil {
			slog.Error("error receiving data", "subscription", m.subscription.String(), "error", err)
		}
	}()
}
