package corpus

// Holder is the process-wide handle on the corpus. It carries either a loaded
// corpus or the error that kept it from loading, so the service can start
// degraded and report the corpus as unavailable.
type Holder struct {
	corpus *Corpus
	err    error
}

func NewHolder(c *Corpus, err error) *Holder {
	if c == nil && err == nil {
		err = &LoadError{Err: ErrUnavailable}
	}
	return &Holder{corpus: c, err: err}
}

// LoadHolder loads path and wraps the outcome. It never fails.
func LoadHolder(path string) *Holder {
	return NewHolder(Load(path))
}

func (h *Holder) Get() (*Corpus, error) {
	if h.err != nil {
		return nil, h.err
	}
	return h.corpus, nil
}

func (h *Holder) Available() bool {
	return h.err == nil
}
