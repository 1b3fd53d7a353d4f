package streambuffer

import "github.com/sn2d/ingestd/pkg/logger"

func logIOError(op, path string, err error) {
	logger.Default().Stream().Warn().
		Str("op", op).
		Str("path", path).
		Err(err).
		Msg("stream buffer disk error")
}

func logCorrupt(path string, err error) {
	logger.Default().Stream().Warn().
		Str("path", path).
		Err(err).
		Msg("discarding corrupt stream file")
}
