package notes

import (
	"math"
	"slices"

	"vidnotes/internal/frames"
)

// Bucket is a fixed time window of frames.
type Bucket struct {
	Start  float64
	End    float64
	Frames []frames.Record
}

// Bucketize groups records into windows of width seconds, keeps the topK
// most confident frames per window, and returns non-empty buckets in time
// order. Within a bucket frames are ordered by confidence, highest first;
// ties keep timestamp order.
func Bucketize(records []frames.Record, width float64, topK int) []Bucket {
	if len(records) == 0 || width <= 0 {
		return nil
	}
	grouped := map[int][]frames.Record{}
	for _, r := range records {
		key := int(math.Floor(r.TimestampSeconds / width))
		grouped[key] = append(grouped[key], r)
	}
	keys := make([]int, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]Bucket, 0, len(keys))
	for _, k := range keys {
		members := grouped[k]
		slices.SortStableFunc(members, func(a, b frames.Record) int {
			switch {
			case a.Confidence > b.Confidence:
				return -1
			case a.Confidence < b.Confidence:
				return 1
			case a.TimestampSeconds < b.TimestampSeconds:
				return -1
			case a.TimestampSeconds > b.TimestampSeconds:
				return 1
			default:
				return 0
			}
		})
		if topK > 0 && len(members) > topK {
			members = members[:topK]
		}
		out = append(out, Bucket{
			Start:  float64(k) * width,
			End:    float64(k+1) * width,
			Frames: members,
		})
	}
	return out
}
