package subghz

/*------------------------------------------------------------------
 *
 * Purpose:	Save transmission attempts to a log file.
 *
 * Description: Rather than leaving outcomes only in volatile state,
 *		write separated properties into CSV format for easy
 *		reading and later processing.
 *
 *		There are two alternatives here.
 *
 *		- A full file path: everything goes into that one file.
 *
 *		- A directory: daily names are created inside it.
 *
 *		Use one or the other but not both.
 *
 *------------------------------------------------------------------*/

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/lestrrat-go/strftime"
)

const txLogHeader = "utime,isotime,counter,frequency,bytes,duration_ms,status\n"

// Daily file name pattern, UTC.
const txLogDailyPattern = "%Y-%m-%d.log"

// TxLog appends one CSV line per transmission attempt.  The file is
// kept open; it is not reopened for every new item.
type TxLog struct {
	dailyNames bool
	path       string
	f          *os.File
	openName   string
	now        func() time.Time
}

// NewTxLog sets up logging at path.  When dailyNames is true, path is
// a directory and file names are generated from the current UTC date;
// otherwise path is the single log file.  An empty path disables the
// feature (Record becomes a no-op).
func NewTxLog(dailyNames bool, path string) (*TxLog, error) {
	l := &TxLog{dailyNames: dailyNames, now: time.Now}
	if path == "" {
		return l, nil
	}
	if dailyNames {
		stat, err := os.Stat(path)
		switch {
		case err == nil && stat.IsDir():
			l.path = path
		case err == nil:
			return nil, fmt.Errorf("log location %q is not a directory", path)
		default:
			// Doesn't exist.  Try to create it; the parent must exist.
			if mkdirErr := os.Mkdir(path, 0755); mkdirErr != nil {
				return nil, fmt.Errorf("create log location %q: %w", path, mkdirErr)
			}
			l.path = path
		}
	} else {
		// Single file. Typically logrotate keeps the size under control.
		l.path = path
	}
	return l, nil
}

// Record appends one attempt.  Failures to write are swallowed after
// the first report; logging never fails a transmission.
func (l *TxLog) Record(counter uint16, frequencyHz uint32, payloadBytes int, took time.Duration, result error) {
	if l.path == "" {
		return
	}

	now := l.now().UTC()

	if l.dailyNames {
		fname, err := strftime.Format(txLogDailyPattern, now)
		if err != nil {
			return
		}

		// Close the current file if the date has rolled over.
		if l.f != nil && fname != l.openName {
			l.Close()
		}
		if l.f == nil {
			l.open(filepath.Join(l.path, fname), fname)
		}
	} else if l.f == nil {
		l.open(l.path, "")
	}

	if l.f == nil {
		return
	}

	status := "ok"
	if result != nil {
		status = result.Error()
	}

	w := csv.NewWriter(l.f)
	w.Write([]string{
		strconv.FormatInt(now.Unix(), 10),
		now.Format("2006-01-02T15:04:05Z"),
		strconv.Itoa(int(counter)),
		strconv.FormatUint(uint64(frequencyHz), 10),
		strconv.Itoa(payloadBytes),
		strconv.FormatInt(took.Milliseconds(), 10),
		status,
	})
	w.Flush()
}

// open opens for append, writing the header only if this will be the
// first line.
func (l *TxLog) open(fullPath, name string) {
	_, statErr := os.Stat(fullPath)
	alreadyThere := statErr == nil

	f, err := os.OpenFile(fullPath, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return
	}
	l.f = f
	l.openName = name

	if !alreadyThere {
		fmt.Fprint(f, txLogHeader)
	}
}

// Close closes any open log file.  Called when exiting or when the
// date changes.
func (l *TxLog) Close() {
	if l.f != nil {
		l.f.Close()
		l.f = nil
		l.openName = ""
	}
}
