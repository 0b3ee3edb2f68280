package rrdcached

// Encode validates cmd and returns its protocol line, newline included.
// Nothing is returned on a validation failure.
func Encode(cmd Command) ([]byte, error) {
	return AppendCommand(nil, cmd)
}

// AppendCommand validates cmd and appends its protocol line to dst.
// On failure dst is returned unchanged together with an error wrapping
// ErrBadRequest.
func AppendCommand(dst []byte, cmd Command) ([]byte, error) {
	if cmd == nil {
		return dst, badRequest("nil command")
	}
	if err := cmd.Validate(); err != nil {
		return dst, err
	}
	dst = append(dst, cmd.Verb()...)
	dst = cmd.appendArgs(dst)
	return append(dst, '\n'), nil
}
