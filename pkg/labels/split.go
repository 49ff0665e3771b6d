package labels

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

// Split partitions the lines of a combined label file into person lines and
// PPE lines. Person lines are returned verbatim, with any line ending
// normalized to "\n".
// Every other line has its class id decremented by one, so the PPE vocabulary
// starts at zero once the person class is removed; its coordinate tokens are
// kept as written.
func Split(r io.Reader, personClass int) (person, ppe []string, err error) {
	br := bufio.NewReader(r)
	n := 0
	for {
		line, rerr := br.ReadString('\n')
		if line != "" {
			n++
			if strings.TrimSpace(line) != "" {
				id, perr := ParseClassID(line)
				if perr != nil {
					return nil, nil, &ParseError{Line: n, Text: strings.TrimRight(line, "\r\n"), Err: perr}
				}
				if id == personClass {
					if trimmed := strings.TrimRight(line, "\r\n"); trimmed != line {
						line = trimmed + "\n"
					}
					person = append(person, line)
				} else {
					fields := strings.Fields(line)
					fields[0] = strconv.Itoa(id - 1)
					ppe = append(ppe, strings.Join(fields, " ")+"\n")
				}
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return person, ppe, nil
			}
			return nil, nil, rerr
		}
	}
}
