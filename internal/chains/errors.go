package chains

import "fmt"

// ArityError reports a constructor argument count that does not match the signature.
type ArityError struct {
	Want int
	Got  int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("constructor expects %d argument(s), got %d", e.Want, e.Got)
}

// ArgTypeError reports a constructor argument that cannot be converted to its ABI type.
type ArgTypeError struct {
	Index int
	Param string
	Want  string // ABI type, e.g. "uint8"
	Got   string // Go type of the supplied value
	Err   error
}

func (e *ArgTypeError) Error() string {
	name := e.Param
	if name == "" {
		name = fmt.Sprintf("#%d", e.Index)
	}
	msg := fmt.Sprintf("argument %s: cannot use %s as %s", name, e.Got, e.Want)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ArgTypeError) Unwrap() error {
	return e.Err
}
