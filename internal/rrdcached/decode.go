package rrdcached

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseCommand parses one protocol line (with or without its trailing
// newline) back into a typed Command. The verb is case-insensitive. A
// parsed command is validated, so Encode never fails on it, and encoding
// the result of ParseCommand(Encode(c)) reproduces the same bytes.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	toks, err := tokenize(line)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, badRequest("empty command line")
	}

	verb := Verb(strings.ToUpper(toks[0]))
	args := toks[1:]

	var cmd Command
	switch verb {
	case VerbCreate:
		cmd, err = parseCreate(args)
	case VerbUpdate:
		var id string
		var samples []Sample
		id, samples, err = parseUpdateArgs(verb, args)
		cmd = Update{ID: id, Samples: samples}
	case VerbUpdateV:
		var id string
		var samples []Sample
		id, samples, err = parseUpdateArgs(verb, args)
		cmd = UpdateV{ID: id, Samples: samples}
	case VerbLast:
		cmd, err = parseIDOnly(verb, args, func(id string) Command { return LastUpdate{ID: id} })
	case VerbFirst:
		cmd, err = parseFirst(args)
	case VerbFetch:
		cmd, err = parseFetch(args)
	case VerbFlush:
		cmd, err = parseIDOnly(verb, args, func(id string) Command { return Flush{ID: id} })
	case VerbPending:
		cmd, err = parseIDOnly(verb, args, func(id string) Command { return Pending{ID: id} })
	case VerbForget:
		cmd, err = parseIDOnly(verb, args, func(id string) Command { return Forget{ID: id} })
	case VerbInfo:
		cmd, err = parseIDOnly(verb, args, func(id string) Command { return Info{ID: id} })
	case VerbSuspend:
		cmd, err = parseIDOnly(verb, args, func(id string) Command { return Suspend{ID: id} })
	case VerbResume:
		cmd, err = parseIDOnly(verb, args, func(id string) Command { return Resume{ID: id} })
	case VerbHelp:
		switch len(args) {
		case 0:
			cmd = Help{}
		case 1:
			cmd = Help{Topic: args[0]}
		default:
			err = badRequest("HELP takes at most one topic")
		}
	case VerbList:
		cmd, err = parseList(args)
	case VerbFlushAll:
		cmd, err = parseNoArgs(verb, args, FlushAll{})
	case VerbStats:
		cmd, err = parseNoArgs(verb, args, Stats{})
	case VerbQuit:
		cmd, err = parseNoArgs(verb, args, Quit{})
	case VerbBatch:
		cmd, err = parseNoArgs(verb, args, Batch{})
	case VerbPing:
		cmd, err = parseNoArgs(verb, args, Ping{})
	case VerbQueue:
		cmd, err = parseNoArgs(verb, args, Queue{})
	case VerbSuspendAll:
		cmd, err = parseNoArgs(verb, args, SuspendAll{})
	case VerbResumeAll:
		cmd, err = parseNoArgs(verb, args, ResumeAll{})
	default:
		return nil, badRequest("unknown command %q", toks[0])
	}
	if err != nil {
		return nil, err
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// tokenize splits a line on runs of blanks. A token that starts with a
// single quote extends to the next single quote, which must end the token.
func tokenize(line string) ([]string, error) {
	var toks []string
	i := 0
	for i < len(line) {
		if isBlank(line[i]) {
			i++
			continue
		}
		if line[i] == '\'' {
			end := strings.IndexByte(line[i+1:], '\'')
			if end < 0 {
				return nil, badRequest("unterminated quote at column %d", i+1)
			}
			tok := line[i+1 : i+1+end]
			i += end + 2
			if tok == "" {
				return nil, badRequest("empty quoted token at column %d", i-1)
			}
			if i < len(line) && !isBlank(line[i]) {
				return nil, badRequest("quoted token must be followed by a blank at column %d", i+1)
			}
			toks = append(toks, tok)
			continue
		}
		start := i
		for i < len(line) && !isBlank(line[i]) {
			if line[i] == '\'' {
				return nil, badRequest("quote inside token at column %d", i+1)
			}
			i++
		}
		toks = append(toks, line[start:i])
	}
	return toks, nil
}

func isBlank(b byte) bool {
	return b == ' ' || b == '\t' || b == '\v' || b == '\f'
}

func parseNoArgs(verb Verb, args []string, cmd Command) (Command, error) {
	if len(args) != 0 {
		return nil, badRequest("%s takes no arguments", verb)
	}
	return cmd, nil
}

func parseIDOnly(verb Verb, args []string, build func(string) Command) (Command, error) {
	if len(args) != 1 {
		return nil, badRequest("%s takes exactly one database identifier", verb)
	}
	return build(args[0]), nil
}

func parseCreate(args []string) (Command, error) {
	if len(args) == 0 {
		return nil, badRequest("CREATE requires a database identifier")
	}
	c := Create{ID: args[0]}
	rest := args[1:]
	for len(rest) > 0 {
		tok := rest[0]
		switch {
		case tok == "-s" || tok == "-b":
			if len(rest) < 2 {
				return nil, badRequest("CREATE option %s requires a value", tok)
			}
			n, err := strconv.ParseInt(rest[1], 10, 64)
			if err != nil {
				return nil, badRequest("CREATE option %s value %q: %v", tok, rest[1], err)
			}
			if tok == "-s" {
				c.Step = time.Duration(n) * time.Second
			} else {
				c.Start = time.Unix(n, 0)
			}
			rest = rest[2:]
			continue
		case tok == "-O":
			c.NoOverwrite = true
		case strings.HasPrefix(tok, "DS:"):
			ds, err := parseDataSource(tok)
			if err != nil {
				return nil, err
			}
			c.DataSources = append(c.DataSources, ds)
		case strings.HasPrefix(tok, "RRA:"):
			a, err := parseArchive(tok)
			if err != nil {
				return nil, err
			}
			c.Archives = append(c.Archives, a)
		default:
			return nil, badRequest("CREATE: unexpected argument %q", tok)
		}
		rest = rest[1:]
	}
	return c, nil
}

func parseUpdateArgs(verb Verb, args []string) (string, []Sample, error) {
	if len(args) < 2 {
		return "", nil, badRequest("%s requires a database identifier and at least one sample", verb)
	}
	samples := make([]Sample, 0, len(args)-1)
	for _, tok := range args[1:] {
		s, err := ParseSample(tok)
		if err != nil {
			return "", nil, err
		}
		samples = append(samples, s)
	}
	return args[0], samples, nil
}

// ParseSample parses the "<time|N>:<value>[:<value>...]" form, where a
// value of "U" is unknown (NaN).
func ParseSample(tok string) (Sample, error) {
	parts := strings.Split(tok, ":")
	if len(parts) < 2 {
		return Sample{}, badRequest("sample %q has no values", tok)
	}
	var s Sample
	if parts[0] != "N" {
		sec, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return Sample{}, badRequest("sample time %q: %v", parts[0], err)
		}
		s.Time = time.Unix(sec, 0)
	}
	s.Values = make([]float64, 0, len(parts)-1)
	for _, p := range parts[1:] {
		if p == "U" {
			s.Values = append(s.Values, math.NaN())
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return Sample{}, badRequest("sample value %q: %v", p, err)
		}
		s.Values = append(s.Values, v)
	}
	return s, s.validate()
}

func parseFirst(args []string) (Command, error) {
	switch len(args) {
	case 1:
		return First{ID: args[0]}, nil
	case 2:
		idx, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, badRequest("FIRST archive index %q: %v", args[1], err)
		}
		return First{ID: args[0], Archive: idx}, nil
	default:
		return nil, badRequest("FIRST takes a database identifier and an optional archive index")
	}
}

func parseFetch(args []string) (Command, error) {
	if len(args) < 2 {
		return nil, badRequest("FETCH requires a database identifier and a consolidation function")
	}
	cf, err := ParseConsolidationFunction(args[1])
	if err != nil {
		return nil, err
	}
	f := Fetch{ID: args[0], CF: cf}
	if len(args) > 2 {
		f.Start = TimeRef(args[2])
	}
	if len(args) > 3 {
		f.End = TimeRef(args[3])
	}
	if len(args) > 4 {
		f.Columns = append([]string(nil), args[4:]...)
	}
	return f, nil
}

func parseList(args []string) (Command, error) {
	switch {
	case len(args) == 1:
		return List{Path: args[0]}, nil
	case len(args) == 2 && strings.EqualFold(args[0], "RECURSIVE"):
		return List{Path: args[1], Recursive: true}, nil
	default:
		return nil, badRequest("LIST takes an optional RECURSIVE flag and a path")
	}
}
