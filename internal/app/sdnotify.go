package app

import (
	"fmt"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "relaybot/pkg/logx"
)

// sdNotify reports state to systemd. Outside a unit with NOTIFY_SOCKET set
// it does nothing.
func sdNotify(log logx.Logger, states ...string) {
	for _, st := range states {
		sent, err := daemon.SdNotify(false, st)
		if err != nil {
			log.Debug("sd_notify failed", logx.String("state", st), logx.Err(err))
			return
		}
		if !sent {
			return
		}
	}
}

func sdStatus(format string, args ...any) string {
	return "STATUS=" + fmt.Sprintf(format, args...)
}
