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

package cloud

import (
	"context"
	"fmt"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-media-analyser/internal/core/model"
)

// IAMURLSigner creates V4 signed URLs without a local key file: the string to
// sign is sent to the IAM Credentials API and signed by the configured
// service account.
type IAMURLSigner struct {
	storageClient *storage.Client
	iamClient     *credentials.IamCredentialsClient
	signerEmail   string
}

// NewIAMURLSigner returns a signer acting as signerEmail. The caller's
// credentials need roles/iam.serviceAccountTokenCreator on that account.
func NewIAMURLSigner(storageClient *storage.Client, iamClient *credentials.IamCredentialsClient, signerEmail string) *IAMURLSigner {
	return &IAMURLSigner{storageClient: storageClient, iamClient: iamClient, signerEmail: signerEmail}
}

// SignedURL returns a URL granting method on bucket/key until ttl from now.
func (s *IAMURLSigner) SignedURL(ctx context.Context, bucket string, key string, method string, ttl time.Duration) (string, error) {
	if s.signerEmail == "" {
		return "", model.NewCollaboratorError("url-signer", "sign", fmt.Errorf("no signer service account configured"))
	}
	opts := &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         method,
		Expires:        time.Now().Add(ttl),
		GoogleAccessID: s.signerEmail,
		SignBytes: func(b []byte) ([]byte, error) {
			resp, err := s.iamClient.SignBlob(ctx, &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", s.signerEmail),
				Payload: b,
			})
			if err != nil {
				return nil, fmt.Errorf("IAMClient.SignBlob: %w", err)
			}
			return resp.SignedBlob, nil
		},
	}
	u, err := s.storageClient.Bucket(bucket).SignedURL(key, opts)
	if err != nil {
		return "", model.NewCollaboratorError("url-signer", "sign", err)
	}
	return u, nil
}
