/*
Package flowforge builds PLC projects from visual flow graphs and deploys
them to TwinCAT controllers.

A build request names a project repository and a toolchain version. The
build server queues it; a worker running that toolchain version claims it,
clones the repository, compiles the flow document into IEC 61131-3
Structured Text, drives the vendor IDE through the automation host to
create, compile and activate the project, commits the generated sources
and, when the request asked for it and the target allows it, deploys the
result over ADS.

# Usage

	cfg, err := config.Load("flowforge.yaml")
	if err != nil {
		log.Fatal(err)
	}
	eng, err := flowforge.New(cfg, flowforge.WithLogger(logging.New(slog.LevelInfo)))
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	// Build API
	go http.ListenAndServe(cfg.Server.Addr, eng.Server().Handler())

	// Build worker
	_ = eng.Worker().Run(ctx)

Every collaborator the engine builds from configuration can be replaced
with an option, which is how the tests run the full pipeline without the
vendor tools.
*/
package flowforge
