// Package factory instantiates pluggable modules from configuration. A module
// is named by a type string and configured by a map of raw settings that the
// factory decodes into its own typed struct.
//
//	reg := factory.NewRegistry[metrics.MetricsSink]()
//	_ = reg.Register("influx", func(conf map[string]any) (metrics.MetricsSink, error) {
//	    var c struct{ URL string `json:"url"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return newInfluxSink(c.URL), nil
//	})
//	sink, err := reg.Create(factory.ModuleConfig{Type: "influx", Conf: raw})
package factory
