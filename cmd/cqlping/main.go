// cqlping connects to a Cassandra cluster, queries its name and
// keyspace list, and prints what it discovered.
package main

import (
	"context"
	"log"
	"strings"
	"time"

	nativecql "github.com/nativecql/nativecql"
)

func main() {
	cfg, err := nativecql.ConfigFromEnv()
	if err != nil {
		log.Fatal(err)
	}

	cl, err := nativecql.NewCluster(*cfg)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := cl.Connect(ctx); err != nil {
		log.Fatal("connect: ", err)
	}
	defer cl.CloseNow()

	name, err := cl.ClusterName(ctx)
	if err != nil {
		log.Fatal("cluster name: ", err)
	}
	log.Println("connected to cluster", name)

	keyspaces, err := cl.Keyspaces(ctx)
	if err != nil {
		log.Fatal("keyspaces: ", err)
	}
	names := make([]string, len(keyspaces))
	for i, k := range keyspaces {
		names[i] = k.Name
	}
	log.Println("keyspaces:", strings.Join(names, ", "))

	if err := cl.CloseWhenIdle(ctx); err != nil {
		log.Println("close:", err)
	}
}
