package godsmr

type outcome uint8

const (
	outcomeNone outcome = iota
	outcomeTelegram
	outcomeError
)

// Result is the outcome of feeding one byte to an accumulator: nothing, a
// complete telegram, or an error. It never carries both a telegram and an
// error.
type Result struct {
	outcome  outcome
	telegram []byte
	err      error
}

func telegramResult(b []byte) Result {
	return Result{outcome: outcomeTelegram, telegram: b}
}

func errorResult(err error) Result {
	return Result{outcome: outcomeError, err: err}
}

// Telegram returns the completed telegram, if any. The slice aliases the
// accumulator's buffer and is only valid until the next ProcessByte or Reset
// on the same accumulator; copy it to keep it.
func (r Result) Telegram() ([]byte, bool) {
	if r.outcome != outcomeTelegram {
		return nil, false
	}
	return r.telegram, true
}

// Err returns the error reported for this byte, if any.
func (r Result) Err() error {
	if r.outcome != outcomeError {
		return nil
	}
	return r.err
}

// Empty reports whether the byte produced neither a telegram nor an error.
func (r Result) Empty() bool {
	return r.outcome == outcomeNone
}
