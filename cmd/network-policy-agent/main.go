/*
Copyright 2025 The Kubermatic Kubernetes Platform contributors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/oklog/run"
	"go.uber.org/zap"

	"k8c.io/network-policy-agent/pkg/agent"
	"k8c.io/network-policy-agent/pkg/credentials"
	"k8c.io/network-policy-agent/pkg/handlers"
	"k8c.io/network-policy-agent/pkg/kubeapi"
	agentlog "k8c.io/network-policy-agent/pkg/log"
	"k8c.io/network-policy-agent/pkg/metrics"
	"k8c.io/network-policy-agent/pkg/policystore"
	"k8c.io/network-policy-agent/pkg/queue"
	"k8c.io/network-policy-agent/pkg/signals"
	"k8c.io/network-policy-agent/pkg/util/flagopts"
)

const defaultCAFile = "/var/run/secrets/kubernetes.io/serviceaccount/ca.crt"

type agentRunOptions struct {
	kubernetesAPI  string
	tokenFile      string
	caFile         string
	etcdEndpoints  flagopts.StringArray
	etcdPrefix     string
	etcdCertFile   string
	etcdKeyFile    string
	etcdCAFile     string
	queueSize      int
	enqueueTimeout time.Duration
	internalAddr   string
	manageEtcHosts bool
}

func main() {
	options := agentRunOptions{
		etcdEndpoints: flagopts.StringArray{"https://127.0.0.1:2379"},
	}

	logOpts := agentlog.NewDefaultOptions()
	logOpts.AddFlags(flag.CommandLine)
	flag.StringVar(&options.kubernetesAPI, "kubernetes-api", envOrDefault("KUBERNETES_API", kubeapi.DefaultAddress), "Address of the Kubernetes API server.")
	flag.StringVar(&options.tokenFile, "token-file", credentials.DefaultTokenFile, "Path to the serviceaccount token used to authenticate against the API server.")
	flag.StringVar(&options.caFile, "kubernetes-ca-file", defaultCAFile, "Path to the CA bundle of the API server. TLS verification is disabled when the file does not exist.")
	flag.Var(&options.etcdEndpoints, "etcd-endpoints", "Comma-separated list of etcd endpoints of the policy store.")
	flag.StringVar(&options.etcdPrefix, "etcd-prefix", policystore.DefaultPrefix, "Key prefix under which the policy store keeps its records.")
	flag.StringVar(&options.etcdCertFile, "etcd-cert-file", "", "Client certificate for the etcd connection.")
	flag.StringVar(&options.etcdKeyFile, "etcd-key-file", "", "Client key for the etcd connection.")
	flag.StringVar(&options.etcdCAFile, "etcd-ca-file", "", "CA bundle for the etcd connection.")
	flag.IntVar(&options.queueSize, "queue-size", queue.DefaultCapacity, "Capacity of the update queue.")
	flag.DurationVar(&options.enqueueTimeout, "enqueue-timeout", queue.DefaultEnqueueTimeout, "How long a reflector waits for free space on the update queue before it resyncs.")
	flag.StringVar(&options.internalAddr, "internal-address", "127.0.0.1:8085", "The address on which the /metrics endpoint will be served.")
	flag.BoolVar(&options.manageEtcHosts, "manage-etc-hosts", false, "Append an /etc/hosts entry for kubernetes.default, for clusters where DNS is down until this agent allows it.")
	flag.Parse()

	if err := logOpts.Validate(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	rawLog := agentlog.New(logOpts.Debug, logOpts.Format)
	log := rawLog.Sugar()
	agentlog.Logger = log
	defer func() {
		if err := log.Sync(); err != nil {
			fmt.Println(err)
		}
	}()

	if options.manageEtcHosts {
		if err := configureEtcHosts(log); err != nil {
			log.Fatalw("Failed to configure /etc/hosts", zap.Error(err))
		}
	}

	tokenSource, closeTokenSource := newTokenSource(options.tokenFile, log)
	defer closeTokenSource()

	caFile := options.caFile
	if _, err := os.Stat(caFile); err != nil {
		log.Warnw("API server CA bundle not found", "path", caFile)
		caFile = ""
	}

	client, err := kubeapi.NewClient(kubeapi.Config{
		Address:     options.kubernetesAPI,
		TokenSource: tokenSource,
		CAFile:      caFile,
	}, log)
	if err != nil {
		log.Fatalw("Failed to create the API client", zap.Error(err))
	}

	store, err := policystore.NewEtcdStore(policystore.Config{
		Endpoints: options.etcdEndpoints,
		Prefix:    options.etcdPrefix,
		CertFile:  options.etcdCertFile,
		KeyFile:   options.etcdKeyFile,
		CAFile:    options.etcdCAFile,
	}, log)
	if err != nil {
		log.Fatalw("Failed to connect to the policy store", zap.Error(err))
	}
	defer store.Close()

	policyAgent := agent.New(agent.Config{
		Client:         client,
		Store:          store,
		Queue:          queue.New(options.queueSize),
		EnqueueTimeout: options.enqueueTimeout,
	}, log)

	networkPolicies := handlers.NewNetworkPolicyHandler(store, policystore.DefaultTier, log)
	policyAgent.Register(kubeapi.NetworkPolicies, kubeapi.EventAdded, networkPolicies.OnUpsert)
	policyAgent.Register(kubeapi.NetworkPolicies, kubeapi.EventDeleted, networkPolicies.OnDelete)

	namespaces := handlers.NewNamespaceHandler(store, log)
	policyAgent.Register(kubeapi.Namespaces, kubeapi.EventAdded, namespaces.OnUpsert)
	policyAgent.Register(kubeapi.Namespaces, kubeapi.EventDeleted, namespaces.OnDelete)

	pods := handlers.NewPodHandler(store, log)
	policyAgent.Register(kubeapi.Pods, kubeapi.EventAdded, pods.OnUpsert)
	policyAgent.Register(kubeapi.Pods, kubeapi.EventDeleted, pods.OnDelete)

	metrics.RegisterAgentVecs()
	metrics.RegisterQueueDepth(policyAgent.Queue().Len)
	go metrics.ServeForever(options.internalAddr, "/metrics")

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	var g run.Group
	// This group is forever waiting in a goroutine for signals to stop
	{
		signalChan := signals.SetupSignalHandler()
		g.Add(func() error {
			select {
			case <-signalChan:
				log.Info("Received a signal to stop")
				return nil
			case <-rootCtx.Done():
				return nil
			}
		}, func(err error) {
			rootCancel()
		})
	}

	// This group runs the reflectors and the dispatcher
	{
		g.Add(func() error {
			return policyAgent.Run(rootCtx)
		}, func(err error) {
			rootCancel()
		})
	}

	if err := g.Run(); err != nil {
		log.Fatalw("Shutting down with error", zap.Error(err))
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}

// newTokenSource prefers the KUBERNETES_AUTH_TOKEN environment variable
// over the serviceaccount token file. A missing token file is not
// fatal, the agent then talks to the API server unauthenticated.
func newTokenSource(path string, log *zap.SugaredLogger) (credentials.Source, func()) {
	if token := os.Getenv("KUBERNETES_AUTH_TOKEN"); token != "" {
		log.Info("Using the access token from the environment")
		return credentials.Static(token), func() {}
	}

	source, err := credentials.NewFileSource(path, log)
	if err != nil {
		log.Warnw("No serviceaccount token found", zap.Error(err))
		return credentials.Static(""), func() {}
	}

	return source, func() {
		if err := source.Close(); err != nil {
			log.Errorw("Failed to close the token watcher", zap.Error(err))
		}
	}
}

// configureEtcHosts appends a kubernetes.default entry to /etc/hosts.
// TLS verification needs the API server's hostname, but DNS may not
// resolve it yet when the agent itself unblocks access to the DNS pods.
func configureEtcHosts(log *zap.SugaredLogger) error {
	host := envOrDefault("KUBERNETES_SERVICE_HOST", "10.100.0.1")

	f, err := os.OpenFile("/etc/hosts", os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open /etc/hosts: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s    kubernetes.default\n", host); err != nil {
		return fmt.Errorf("failed to append to /etc/hosts: %w", err)
	}

	log.Infow("Mapped kubernetes.default in /etc/hosts", "host", host)

	return nil
}
