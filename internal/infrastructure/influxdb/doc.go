// Package influxdb records gateway statement metrics in InfluxDB 2.x using
// influxdb-client-go v2.
//
// Each executed command becomes one point in the sql_statements measurement
// tagged with kind, verb and success, with the duration in milliseconds as
// a field. Periodic gateway counters go to gateway_stats.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, log)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics are optional
//	}
//	defer client.Close()
//	bus.Subscribe(influxdb.NewEventSink(client))
package influxdb
