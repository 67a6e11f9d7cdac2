package slicescan

// Mode selects how a candidate is compared against the recovery set. Each
// run picks one mode per pass; ModeAuto may chain Simple and Sliding.
type Mode uint8

const (
	// ModeAuto uses Simple for identified candidates, following up with
	// Sliding when blocks of that file are still missing, and Sliding for
	// everything else.
	ModeAuto Mode = iota

	// ModeAligned compares only the expected block at each aligned offset.
	// It needs an identity and tolerates no shift.
	ModeAligned

	// ModeSimple compares aligned offsets against the whole index, with
	// prediction, a tail probe and a reversed pass anchored at the file end.
	ModeSimple

	// ModeSliding runs the rolling-window scanner over every byte offset.
	ModeSliding
)

var modeNames = map[Mode]string{
	ModeAuto:    "auto",
	ModeAligned: "aligned",
	ModeSimple:  "simple",
	ModeSliding: "sliding",
}

func (m Mode) String() string { return modeNames[m] }

// ParseMode converts a mode name back into a Mode.
func ParseMode(s string) (Mode, bool) {
	for m, name := range modeNames {
		if name == s {
			return m, true
		}
	}
	return ModeAuto, false
}

// apply runs the policy selected by c.
func (fs *fileScan) apply(c Candidate) error {
	switch c.Mode {
	case ModeAligned:
		if fs.hint == NoFile {
			// Nothing to align against.
			return fs.runMode(ModeSliding, c.StartOffset)
		}
		return fs.runMode(ModeAligned, c.StartOffset)
	case ModeSimple:
		return fs.runMode(ModeSimple, c.StartOffset)
	case ModeSliding:
		return fs.runMode(ModeSliding, c.StartOffset)
	}

	if fs.hint == NoFile {
		return fs.runMode(ModeSliding, c.StartOffset)
	}
	if err := fs.runMode(ModeSimple, c.StartOffset); err != nil {
		return err
	}
	if fs.fileComplete(fs.hint) || fs.size < int64(fs.s.set.BlockSize) {
		return nil
	}
	return fs.runMode(ModeSliding, max(c.StartOffset, fs.verified))
}

func (fs *fileScan) runMode(m Mode, start int64) error {
	fs.report.Modes = append(fs.report.Modes, m)
	switch m {
	case ModeAligned:
		return fs.scanAligned(start)
	case ModeSimple:
		return fs.scanSimple(start)
	default:
		return fs.scanSliding(start)
	}
}

// fileComplete reports whether every block of file id is available.
func (fs *fileScan) fileComplete(id FileID) bool {
	f := &fs.s.set.Files[id]
	for i := f.FirstBlock; i < f.FirstBlock+f.BlockCount; i++ {
		if fs.s.table.Get(i).State == NotFound {
			return false
		}
	}
	return true
}
