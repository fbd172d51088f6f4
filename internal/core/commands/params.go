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

// Package commands holds the steps of the analysis pipelines, each a
// cor.Command. Data flows between them through cor.CtxIn / cor.CtxOut; the
// values every step of a run may need are stored under the keys below.
package commands

// GetParentParameterName is the key holding the id of the MediaIndexRecord
// the pipeline is producing artifacts for.
func GetParentParameterName() string {
	return "__PARENT__"
}

// GetMediaNameParameterName is the key holding the storage key of the media
// object being analysed.
func GetMediaNameParameterName() string {
	return "__MEDIA_NAME__"
}

// GetUploadNameParameterName is the key holding the object name an upload is
// stored under.
func GetUploadNameParameterName() string {
	return "__UPLOAD_NAME__"
}
