package utils

import "math/rand"

type integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}

	return v
}

// GenerateUniqueInts returns n distinct integers from [lo, hi] in random
// order. Panics if the range holds fewer than n values.
func GenerateUniqueInts[T integer](n int, lo, hi T, r *rand.Rand) []T {
	span := int(hi-lo) + 1
	if n > span {
		panic("range is too small to generate unique integers")
	}

	perm := r.Perm(span)
	res := make([]T, 0, n)
	for _, offset := range perm[:n] {
		res = append(res, lo+T(offset))
	}

	return res
}
