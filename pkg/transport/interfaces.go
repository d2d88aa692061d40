package transport

// Compile-time interface satisfaction checks.
var (
	_ Distributor         = (*RoundRobinDistributor)(nil)
	_ Strategy            = (*SameThreadStrategy)(nil)
	_ Strategy            = (*WorkerStrategy)(nil)
	_ Processor           = (*FilterChain)(nil)
	_ Processor           = ProcessorFunc(nil)
	_ Filter              = FilterFunc(nil)
	_ LifecycleListener   = ListenerFunc(nil)
	_ LifecycleListener   = (*loggingListener)(nil)
	_ ChannelConfigurator = DefaultChannelConfigurator{}
)
