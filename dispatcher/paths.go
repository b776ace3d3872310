// Copyright 2025 OpenStacks Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dispatcher

// Fixed POST sub-paths, one per event category, joined onto each observer's
// base endpoint
const (
	PathMicroblockSubmit   = "new_microblocks"
	PathMempoolTxSubmit    = "new_mempool_tx"
	PathMempoolTxDrop      = "drop_mempool_tx"
	PathMinedBlock         = "mined_block"
	PathMinedMicroblock    = "mined_microblock"
	PathMinedNakamotoBlock = "mined_nakamoto_block"
	PathStackerDBChunks    = "stackerdb_chunks"
	PathBurnBlockSubmit    = "new_burn_block"
	PathBlockProcessed     = "new_block"
	PathAttachmentsNew     = "attachments/new"
	PathProposalResponse   = "proposal_response"
)
