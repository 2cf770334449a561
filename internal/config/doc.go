// Package config provides configuration management for coffeectl.
//
// Configuration is layered. Each layer overrides the values set by the
// layers before it:
//
//  1. Default Configuration (embedded in binary)
//     - a kind cluster named coffee-queue, namespace coffee-queue
//     - the namespace, database and application tiers under deploy/k8s
//
//  2. User Configuration (~/.config/coffeectl/config.yaml)
//
//  3. Project Configuration (./.coffeectl/config.yaml)
//
//  4. Environment
//     - a .env file in the working directory, read with godotenv
//     - process environment variables, which win over .env values
//
//  5. Command-line flags, applied with ApplyOverrides
//
// # Configuration Structure
//
//	cluster:
//	  name: coffee-queue
//	  backend: kind          # kind | minikube | docker-desktop
//	namespace: coffee-queue
//	tiers:
//	  - name: database
//	    manifests: [deploy/k8s/postgres.yaml]
//	    wait:
//	      kind: pods
//	      selector: app.kubernetes.io/name=postgres
//	      timeout: 3m
//	retry:
//	  attempts: 3
//	  initialDelay: 5s
//	  factor: 2
//
// Images and tiers are merged by name, so a project file only needs to list
// the entries it changes.
//
// # Environment Variables
//
// CLUSTER_NAME, CLUSTER_BACKEND, KUBE_CONTEXT, NAMESPACE, DB_HOST, DB_PORT,
// DB_USER, DB_PASSWORD, DB_NAME, APP_IMAGE and COFFEECTL_ASSUME_YES.
package config
