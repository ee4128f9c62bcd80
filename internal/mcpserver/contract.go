package mcpserver

// PipelineGuide describes the Declarative Pipeline structure that validated
// Jenkinsfiles must follow. LLM consumers should read it before generating
// or editing pipeline code.
const PipelineGuide = `# Jenkinsfile Declarative Pipeline Guide

Jenkinsfiles submitted to the validation tools are checked by a real Jenkins
controller, so they must be valid Declarative Pipeline (or Scripted Pipeline)
Groovy.

## Structure

` + "```" + `groovy
pipeline {
    agent any                       // REQUIRED at top level (or per stage)

    environment {                   // OPTIONAL key = value pairs
        DEPLOY_ENV = 'staging'
    }

    stages {                        // REQUIRED, at least one stage
        stage('Build') {
            steps {                 // REQUIRED inside every stage
                sh 'make build'
            }
        }
    }

    post {                          // OPTIONAL always/success/failure blocks
        failure {
            echo 'build failed'
        }
    }
}
` + "```" + `

## Rules

1. **The outer block is ` + "`" + `pipeline { }` + "`" + `.** Everything else nests inside it.
2. **` + "`" + `agent` + "`" + ` is mandatory** at the top level, or ` + "`" + `agent none` + "`" + ` there with an
   ` + "`" + `agent` + "`" + ` on every stage.
3. **Every ` + "`" + `stage` + "`" + ` needs a name and a ` + "`" + `steps` + "`" + ` block** (or ` + "`" + `parallel` + "`" + ` /
   ` + "`" + `matrix` + "`" + `).
4. **Strings are Groovy strings.** Single quotes are literal; double quotes
   interpolate ` + "`" + `${VAR}` + "`" + `.
5. **Balance your braces.** Unbalanced ` + "`" + `{ }` + "`" + ` is the most common rejection,
   reported as ` + "`" + `unexpected token` + "`" + ` at the closing line.
6. **Scripted Pipeline** (` + "`" + `node { }` + "`" + ` at the top level) is also accepted by the
   validator, but prefer Declarative for new pipelines.

## Validation results

- ` + "`" + `accepted` + "`" + ` means the controller parsed the pipeline successfully.
- ` + "`" + `rejected` + "`" + ` carries diagnostics with zero-based line and column numbers
  pointing at each reported problem.
- Any other outcome means the validation request itself failed (network,
  credentials, or a controller without the pipeline-model-definition plugin)
  and says nothing about the pipeline content.

## Example

` + "```" + `groovy
pipeline {
    agent any
    stages {
        stage('Test') {
            steps {
                sh 'go test ./...'
            }
        }
        stage('Package') {
            steps {
                sh 'go build -o bin/app ./cmd/app'
                archiveArtifacts artifacts: 'bin/app'
            }
        }
    }
}
` + "```" + `
`
