// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package etcdtopo implements topo.Conn with etcd v3 as the backend.

Every log metadata file is one etcd key below the Conn root. File versions
are etcd mod revisions, so Update and Delete with a version become
transactions comparing the key's ModRevision.

Call convertError on any error returned by the etcd client. Functions in
this package return already converted errors.
*/
package etcdtopo

import (
	"crypto/tls"
	"crypto/x509"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"go.etcd.io/etcd/client/pkg/v3/tlsutil"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/multigres/logsafety/go/clustermetadata/topo"
)

// Implementation is the name etcdtopo registers under.
const Implementation = "etcd"

// dialTimeout bounds the initial connection to the cluster.
const dialTimeout = 5 * time.Second

var (
	tlsMu          sync.Mutex
	clientCertPath string
	clientKeyPath  string
	serverCaPath   string
)

// Factory is the etcd topo.Factory implementation. It uses the TLS paths
// set through RegisterFlags.
type Factory struct{}

var _ topo.Factory = Factory{}

func init() {
	topo.RegisterFactory(Implementation, Factory{})
}

// RegisterFlags adds the etcd TLS flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	tlsMu.Lock()
	defer tlsMu.Unlock()
	fs.StringVar(&clientCertPath, "topo-etcd-tls-cert", clientCertPath, "path to the client cert to use to connect to the etcd topo server, requires topo-etcd-tls-key, enables TLS")
	fs.StringVar(&clientKeyPath, "topo-etcd-tls-key", clientKeyPath, "path to the client key to use to connect to the etcd topo server, enables TLS")
	fs.StringVar(&serverCaPath, "topo-etcd-tls-ca", serverCaPath, "path to the ca to use to validate the server cert when connecting to the etcd topo server")
}

// Create implements topo.Factory.
func (Factory) Create(root string, serverAddrs []string) (topo.Conn, error) {
	tlsMu.Lock()
	cert, key, ca := clientCertPath, clientKeyPath, serverCaPath
	tlsMu.Unlock()
	return NewServerWithOpts(serverAddrs, root, cert, key, ca)
}

// Server is the etcd topo.Conn.
type Server struct {
	cli  *clientv3.Client
	root string
}

var _ topo.Conn = (*Server)(nil)

func newTLSConfig(certPath, keyPath, caPath string) (*tls.Config, error) {
	if certPath == "" || keyPath == "" {
		return nil, nil
	}
	cert, err := tlsutil.NewCert(certPath, keyPath, nil)
	if err != nil {
		return nil, err
	}
	var cp *x509.CertPool
	if caPath != "" {
		cp, err = tlsutil.NewCertPool([]string{caPath})
		if err != nil {
			return nil, err
		}
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		RootCAs:      cp,
		Certificates: []tls.Certificate{*cert},
	}, nil
}

// NewServerWithOpts connects to the etcd cluster at serverAddrs. TLS is
// enabled when both certPath and keyPath are set.
func NewServerWithOpts(serverAddrs []string, root, certPath, keyPath, caPath string) (*Server, error) {
	if len(serverAddrs) == 0 {
		return nil, topo.NewError(topo.BadInput, "no etcd server addresses")
	}
	tlscfg, err := newTLSConfig(certPath, keyPath, caPath)
	if err != nil {
		return nil, err
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   serverAddrs,
		DialTimeout: dialTimeout,
		TLS:         tlscfg,
	})
	if err != nil {
		return nil, err
	}
	return &Server{cli: cli, root: root}, nil
}

// NewServer connects without TLS.
func NewServer(serverAddrs []string, root string) (*Server, error) {
	return NewServerWithOpts(serverAddrs, root, "", "", "")
}

// Close implements topo.Conn. The Server must not be used afterwards.
func (s *Server) Close() error {
	return s.cli.Close()
}
