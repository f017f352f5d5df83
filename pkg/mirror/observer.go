package mirror

// Observer receives progress callbacks from a Driver. PageDone may be called
// from several goroutines at once.
type Observer interface {
	ItemStarted(id, title string, subUnits int)
	SubUnitStarted(itemID, name string, pages int)
	PageDone(size int64, skipped bool, err error)
	SubUnitDone(itemID, name string, err error)
	ItemDone(id string, outcome Outcome)
}

type nopObserver struct{}

func (nopObserver) ItemStarted(string, string, int)    {}
func (nopObserver) SubUnitStarted(string, string, int) {}
func (nopObserver) PageDone(int64, bool, error)        {}
func (nopObserver) SubUnitDone(string, string, error)  {}
func (nopObserver) ItemDone(string, Outcome)           {}
