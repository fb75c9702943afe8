package lifetime

import (
	"github.com/sirupsen/logrus"
)

func logSkipped(function string) {
	logrus.WithFields(logrus.Fields{
		"function": function,
	}).Debug("Owner ended, skipping bound call")
}

// Bind0 wraps a method with no arguments.
func Bind0(o Observable, fn func()) func() {
	token := o.Token()
	return func() {
		if !token.Do(fn) {
			logSkipped("Bind0")
		}
	}
}

// Bind wraps a one-argument method so that it is only dispatched while o
// is alive. The result has the signature of fn and can be handed straight
// to a callback slot.
func Bind[A any](o Observable, fn func(A)) func(A) {
	token := o.Token()
	return func(a A) {
		if !token.Do(func() { fn(a) }) {
			logSkipped("Bind")
		}
	}
}

// Bind2 wraps a two-argument method.
func Bind2[A, B any](o Observable, fn func(A, B)) func(A, B) {
	token := o.Token()
	return func(a A, b B) {
		if !token.Do(func() { fn(a, b) }) {
			logSkipped("Bind2")
		}
	}
}

// BindFunc wraps a method returning a value. After o ended the wrapper
// returns the zero value of R.
func BindFunc[R any](o Observable, fn func() R) func() R {
	token := o.Token()
	return func() R {
		var r R
		if !token.Do(func() { r = fn() }) {
			logSkipped("BindFunc")
		}
		return r
	}
}

// BindResult wraps a one-argument method returning a value. After o ended
// the wrapper returns the zero value of R: false for bool, nil for error.
func BindResult[A, R any](o Observable, fn func(A) R) func(A) R {
	token := o.Token()
	return func(a A) R {
		var r R
		if !token.Do(func() { r = fn(a) }) {
			logSkipped("BindResult")
		}
		return r
	}
}
