package codec2

import "weak"

// componentListener forwards component events into the owning session.
// It holds a weak reference so an abandoned session can be collected
// even while its component keeps firing events.
type componentListener struct {
	codec weak.Pointer[Codec]
}

func newComponentListener(c *Codec) *componentListener {
	return &componentListener{codec: weak.Make(c)}
}

func (l *componentListener) OnWorkDone(items []*Work) {
	if c := l.codec.Value(); c != nil {
		c.onWorkDone(items)
	}
}

func (l *componentListener) OnTripped(errs []SettingError) {
	if c := l.codec.Value(); c != nil {
		c.onTripped(errs)
	}
}

func (l *componentListener) OnError(err error) {
	if c := l.codec.Value(); c != nil {
		c.onComponentError(err)
	}
}
