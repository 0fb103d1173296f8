// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import "go.uber.org/zap"

// NewDevelopmentLogger is a convenience constructor for wiring a
// human-readable zap logger into NewCollector during development or
// cmd/gcdemo; production callers typically pass their own *zap.Logger
// (or nil, which NewCollector turns into zap.NewNop()).
func NewDevelopmentLogger() *zap.Logger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
