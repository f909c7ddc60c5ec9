/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package internal

import (
	"context"
	"time"
)

type Deadline interface {
	SetDeadline(t time.Time) error
}

// DeadlineFromContext moves the deadline of conn to the one of ctx, or clears it.
func DeadlineFromContext(ctx context.Context, conn Deadline) error {
	dl, _ := ctx.Deadline()
	return conn.SetDeadline(dl)
}
