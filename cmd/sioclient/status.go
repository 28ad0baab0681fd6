package main

import (
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/zyxar/sioclient"
)

// printStatus renders one row per connection.
func printStatus(w io.Writer, infos []sioclient.ClientInfo) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"Handle", "Server", "Namespace", "Status", "SID", "Ping", "Last Pong"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, info := range infos {
		sid, ping, pong := info.SID, "-", "-"
		if sid == "" {
			sid = "-"
		}
		if info.PingInterval > 0 {
			ping = info.PingInterval.String() + "/" + info.PingTimeout.String()
		}
		if !info.LastPong.IsZero() {
			pong = time.Since(info.LastPong).Truncate(time.Second).String() + " ago"
		}
		tw.Append([]string{
			strconv.Itoa(int(info.Handle)),
			info.Server,
			info.Namespace,
			info.Status.String(),
			sid,
			ping,
			pong,
		})
	}
	tw.Render()
}
