package model

type CacheState int32

const (
	CacheEmpty CacheState = iota
	CachePopulating
	CacheFilled
)

func (s CacheState) String() string {
	switch s {
	case CacheEmpty:
		return "empty"
	case CachePopulating:
		return "populating"
	case CacheFilled:
		return "filled"
	default:
		return "unknown"
	}
}

func (s CacheState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
