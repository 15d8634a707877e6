package types

// DictionaryItem is a single libav option (demuxer or decoder).
type DictionaryItem struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type DictionaryItems []DictionaryItem

// Deduplicate keeps only the last value of every key; the relative order
// follows the position of those last values.
func (s DictionaryItems) Deduplicate() DictionaryItems {
	lastIdx := map[string]int{}
	for idx, item := range s {
		lastIdx[item.Key] = idx
	}
	result := make(DictionaryItems, 0, len(lastIdx))
	for idx, item := range s {
		if lastIdx[item.Key] != idx {
			continue
		}
		result = append(result, item)
	}
	return result
}

// Get returns the last value set for key.
func (s DictionaryItems) Get(key string) (string, bool) {
	for idx := len(s) - 1; idx >= 0; idx-- {
		if s[idx].Key == key {
			return s[idx].Value, true
		}
	}
	return "", false
}
