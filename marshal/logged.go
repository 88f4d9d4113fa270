package marshal

import (
	"go.uber.org/zap"
)

// Logged wraps a table so that every call is logged at debug level and every
// failure at warn level. A nil logger returns t unchanged.
func Logged(t Table, log *zap.Logger) Table {
	if log == nil {
		return t
	}
	return &loggedTable{next: t, log: log.Named("marshal")}
}

type loggedTable struct {
	next Table
	log  *zap.Logger
}

func (l *loggedTable) done(op string, err error, fields ...zap.Field) {
	if err != nil {
		l.log.Warn(op+" failed", append(fields, zap.Error(err))...)
		return
	}
	if ce := l.log.Check(zap.DebugLevel, op); ce != nil {
		ce.Write(fields...)
	}
}

func (l *loggedTable) Schema() *Schema {
	return l.next.Schema()
}

func (l *loggedTable) New(c Class) (Handle, error) {
	h, err := l.next.New(c)
	l.done("new", err, zap.String("class", string(c)), zap.Uint32("handle", uint32(h)))
	return h, err
}

func (l *loggedTable) Destroy(h Handle, c Class) error {
	err := l.next.Destroy(h, c)
	l.done("destroy", err, zap.String("class", string(c)), zap.Uint32("handle", uint32(h)))
	return err
}

func (l *loggedTable) Get(h Handle, c Class, f Field) (string, error) {
	v, err := l.next.Get(h, c, f)
	l.done("get", err,
		zap.String("class", string(c)),
		zap.String("field", string(f)),
		zap.Uint32("handle", uint32(h)),
	)
	return v, err
}

func (l *loggedTable) Set(h Handle, c Class, f Field, value string) error {
	err := l.next.Set(h, c, f, value)
	l.done("set", err,
		zap.String("class", string(c)),
		zap.String("field", string(f)),
		zap.Uint32("handle", uint32(h)),
		zap.Int("len", len(value)),
	)
	return err
}

func (l *loggedTable) Upcast(h Handle, from, to Class) (Handle, error) {
	out, err := l.next.Upcast(h, from, to)
	l.done("upcast", err,
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Uint32("handle", uint32(h)),
	)
	return out, err
}

func (l *loggedTable) DynamicCast(h Handle, to Class) (Handle, error) {
	out, err := l.next.DynamicCast(h, to)
	l.done("dynamic_cast", err,
		zap.String("to", string(to)),
		zap.Uint32("handle", uint32(h)),
		zap.Bool("hit", out != 0),
	)
	return out, err
}

func (l *loggedTable) ClassOf(h Handle) (Class, error) {
	c, err := l.next.ClassOf(h)
	l.done("class_of", err, zap.Uint32("handle", uint32(h)), zap.String("class", string(c)))
	return c, err
}

func (l *loggedTable) Len(h Handle, c Class, list List) (int, error) {
	n, err := l.next.Len(h, c, list)
	l.done("len", err, zap.String("class", string(c)), zap.String("list", string(list)), zap.Int("len", n))
	return n, err
}

func (l *loggedTable) Append(h Handle, c Class, list List, elem Handle) error {
	err := l.next.Append(h, c, list, elem)
	l.done("append", err,
		zap.String("class", string(c)),
		zap.String("list", string(list)),
		zap.Uint32("handle", uint32(h)),
		zap.Uint32("elem", uint32(elem)),
	)
	return err
}

func (l *loggedTable) At(h Handle, c Class, list List, i int) (Handle, error) {
	elem, err := l.next.At(h, c, list, i)
	l.done("at", err,
		zap.String("class", string(c)),
		zap.String("list", string(list)),
		zap.Int("index", i),
		zap.Uint32("elem", uint32(elem)),
	)
	return elem, err
}

func (l *loggedTable) RemoveAt(h Handle, c Class, list List, i int) error {
	err := l.next.RemoveAt(h, c, list, i)
	l.done("remove_at", err,
		zap.String("class", string(c)),
		zap.String("list", string(list)),
		zap.Int("index", i),
	)
	return err
}
