// Package ledgerlog adapts pkg/logging (kept from the teacher, a thin
// wrapper over charmbracelet/log) to the ledger.Logger/ErrorCollector
// collaborator contract from spec §6.
package ledgerlog

import (
	"github.com/klingon-exchange/tokenledger/internal/ledger"
	"github.com/klingon-exchange/tokenledger/pkg/logging"
)

// Adapter implements ledger.Logger and ledger.ErrorCollector over a
// *logging.Logger.
type Adapter struct {
	log *logging.Logger
}

// New wraps log. If log is nil, the package default logger is used.
func New(log *logging.Logger) *Adapter {
	if log == nil {
		log = logging.GetDefault()
	}
	return &Adapter{log: log.Component("tokenledger")}
}

func (a *Adapter) Debug(msg string) {
	a.log.Debug(msg)
}

func (a *Adapter) WriteLog(evt ledger.LogEvent) {
	keyvals := make([]interface{}, 0, 4+2*len(evt.Data))
	keyvals = append(keyvals, "flag", evt.Flag, "action", evt.Action)
	for k, v := range evt.Data {
		keyvals = append(keyvals, k, v)
	}
	msg := evt.Message
	if msg == "" {
		msg = evt.Action
	}
	a.log.Info(msg, keyvals...)
}

func (a *Adapter) AddError(message string, data map[string]interface{}) {
	keyvals := make([]interface{}, 0, 2*len(data))
	for k, v := range data {
		keyvals = append(keyvals, k, v)
	}
	a.log.Error(message, keyvals...)
}
