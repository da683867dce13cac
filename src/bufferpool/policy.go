package bufferpool

import "fmt"

const (
	PolicyRandom = "random"
	PolicyLRU    = "lru"
)

// NewReplacer builds the replacement policy with the given name.
func NewReplacer(policy string) (Replacer, error) {
	switch policy {
	case PolicyRandom, "":
		return NewRandomReplacer(), nil
	case PolicyLRU:
		return NewLRUReplacer(), nil
	}

	return nil, fmt.Errorf("unknown eviction policy %q", policy)
}
