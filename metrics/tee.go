package metrics

// TeeProvider fans every instrument out to several providers.
type TeeProvider []Provider

// NewTeeProvider returns a Provider recording into each non-nil p.
func NewTeeProvider(ps ...Provider) TeeProvider {
	out := make(TeeProvider, 0, len(ps))
	for _, p := range ps {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (t TeeProvider) Counter(name string, opts ...InstrumentOption) Counter {
	cs := make(teeAdder, len(t))
	for i, p := range t {
		cs[i] = p.Counter(name, opts...)
	}
	return cs
}

func (t TeeProvider) UpDownCounter(name string, opts ...InstrumentOption) UpDownCounter {
	us := make(teeAdder, len(t))
	for i, p := range t {
		us[i] = p.UpDownCounter(name, opts...)
	}
	return us
}

func (t TeeProvider) Histogram(name string, opts ...InstrumentOption) Histogram {
	hs := make(teeHistogram, len(t))
	for i, p := range t {
		hs[i] = p.Histogram(name, opts...)
	}
	return hs
}

type teeAdder []interface{ Add(int64) }

func (a teeAdder) Add(n int64) {
	for _, c := range a {
		c.Add(n)
	}
}

type teeHistogram []Histogram

func (h teeHistogram) Record(v float64) {
	for _, x := range h {
		x.Record(v)
	}
}
