// SPDX-License-Identifier: Apache-2.0

package domain

import "errors"

var ErrRunNotFound = errors.New("workflow run not found")
var ErrRunNotSuspended = errors.New("workflow run is not suspended")
var ErrApprovalNotFound = errors.New("approval request not found")
var ErrApprovalResolved = errors.New("approval request already resolved")
var ErrUnknownTool = errors.New("unknown tool")
