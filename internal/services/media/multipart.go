package media

import (
	"sort"

	"github.com/minio/minio-go/v7"
)

// partRange is one contiguous slice of a buffer to upload as a multipart
// part.
type partRange struct {
	offset int64
	size   int64
}

// useMultipart decides the transfer strategy. Objects at or below the
// threshold take the single-PUT path.
func useMultipart(size, threshold int64) bool {
	return size > threshold
}

// splitParts cuts a buffer into threshold-sized parts. Every part except the
// last has exactly the threshold size, which satisfies the S3 minimum part
// size as long as the threshold does.
func splitParts(total, partSize int64) []partRange {
	if total <= 0 || partSize <= 0 {
		return nil
	}

	ranges := make([]partRange, 0, (total+partSize-1)/partSize)
	for offset := int64(0); offset < total; offset += partSize {
		size := partSize
		if offset+size > total {
			size = total - offset
		}
		ranges = append(ranges, partRange{offset: offset, size: size})
	}
	return ranges
}

func sortCompleteParts(parts []minio.CompletePart) {
	sort.Slice(parts, func(i, j int) bool {
		return parts[i].PartNumber < parts[j].PartNumber
	})
}
