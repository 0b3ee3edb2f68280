package rrdcached

// Response is one complete daemon reply.
type Response struct {
	// Code is the leading integer of the status line. Negative codes are
	// errors; a non-negative code is the number of body lines.
	Code int

	// Message is the rest of the status line.
	Message string

	// Lines holds the body, verbatim, without line terminators.
	// len(Lines) == Code whenever Code >= 0.
	Lines []string
}

// OK reports whether the daemon accepted the command.
func (r *Response) OK() bool {
	return r != nil && r.Code >= 0
}

// Err returns the classified error for a negative status, or nil.
func (r *Response) Err() error {
	if r == nil || r.Code >= 0 {
		return nil
	}
	return newResponseError(r.Code, r.Message)
}
