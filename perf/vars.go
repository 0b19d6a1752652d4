package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

// process-wide rates, shared by every node in the simulation
var (
	DispatchLatency       = metric.NewHistogram("1m1s")
	MergeLatency          = metric.NewHistogram("1m1s")
	EnvelopeSize          = metric.NewHistogram("10s1s")
	SendsPerSecond        = metric.NewCounter("10s1s")
	RecvsPerSecond        = metric.NewCounter("10s1s")
	ForwardsPerSecond     = metric.NewCounter("10s1s")
	DeliveriesPerSecond   = metric.NewCounter("10s1s")
	DropsPerSecond        = metric.NewCounter("10s1s")
	SentBytesPerSecond    = metric.NewCounter("10s1s")
	RecvBytesPerSecond    = metric.NewCounter("10s1s")
	AdvertsPerSecond      = metric.NewCounter("10s1s")
	RouteChangesPerSecond = metric.NewCounter("10s1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("jade:EnvelopeSize", EnvelopeSize)

	expvar.Publish("jade:Sends/s", SendsPerSecond)
	expvar.Publish("jade:Recvs/s", RecvsPerSecond)
	expvar.Publish("jade:Forwards/s", ForwardsPerSecond)
	expvar.Publish("jade:Deliveries/s", DeliveriesPerSecond)
	expvar.Publish("jade:Drops/s", DropsPerSecond)
	expvar.Publish("jade:SentBytes/s", SentBytesPerSecond)
	expvar.Publish("jade:RecvBytes/s", RecvBytesPerSecond)
	expvar.Publish("jade:Adverts/s", AdvertsPerSecond)
	expvar.Publish("jade:RouteChanges/s", RouteChangesPerSecond)
	expvar.Publish("jade:DispatchLatency (µs)", DispatchLatency)
	expvar.Publish("jade:MergeLatency (µs)", MergeLatency)
}
